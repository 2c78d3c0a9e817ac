package ratelimiter

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketは、容量burstのバケットを毎分ratePerMinuteトークンで連続的に補充するレートリミッターです。
// 補充は呼び出し時に遅延計算され、トークンが1未満の場合は消費せずに拒否します（負残高なし）。
// 同期は呼び出し側（Governor）の責務です。
type TokenBucket struct {
	limiter *rate.Limiter
	burst   int
}

// NewTokenBucketは満タン状態の新しいTokenBucketを生成します。
func NewTokenBucket(ratePerMinute float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), burst),
		burst:   burst,
	}
}

// AllowAtは時刻tでトークンを1つ消費できればtrueを返します。
// rate.Limiterは1にわずかに満たない残量でも待ち時間0として許可するため、先に残量を確認します。
func (b *TokenBucket) AllowAt(t time.Time) bool {
	if b.limiter.TokensAt(t) < 1 {
		return false
	}
	return b.limiter.AllowN(t, 1)
}

// TokensAtは時刻tにおける利用可能トークン数を返します。0未満にはなりません。
func (b *TokenBucket) TokensAt(t time.Time) float64 {
	return max(0, b.limiter.TokensAt(t))
}

// Burstはバケット容量を返します。
func (b *TokenBucket) Burst() int {
	return b.burst
}

// Restoreは永続化されたトークン残量を時刻atの値として復元します。
// 端数は切り捨て側に丸めるため、復元後の残量が保存値を上回ることはありません。
func (b *TokenBucket) Restore(tokens float64, at time.Time) {
	if at.IsZero() || tokens >= float64(b.burst) {
		return
	}
	if tokens < 0 {
		tokens = 0
	}
	consume := int(math.Ceil(float64(b.burst) - tokens))
	if consume > 0 {
		b.limiter.AllowN(at, consume)
	}
}
