package adapters

import (
	"context"
	"errors"
	"time"

	"stock_history/internal/feature/governor/domain/entity"
	"stock_history/internal/feature/governor/usecase"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stateRowID は単一行テーブルの固定主キーです。
const stateRowID = 1

type stateGorm struct {
	db *gorm.DB
}

var _ usecase.StateRepository = (*stateGorm)(nil)

// NewStateRepository はDBに統制状態を保存するリポジトリを生成します。
func NewStateRepository(db *gorm.DB) *stateGorm {
	return &stateGorm{db: db}
}

// GovernorStateModel は統制状態の単一行レコードです。
type GovernorStateModel struct {
	ID              uint           `gorm:"primaryKey;autoIncrement:false"`
	Date            string         `gorm:"size:10;not null"`
	DailyRequests   int            `gorm:"not null;default:0"`
	Tickers         map[string]int `gorm:"type:text;serializer:json"`
	Tokens          float64        `gorm:"not null;default:0"`
	TokensUpdatedAt time.Time
}

func (GovernorStateModel) TableName() string {
	return "governor_state"
}

func (r *stateGorm) Load(ctx context.Context) (*entity.State, error) {
	var m GovernorStateModel
	err := r.db.WithContext(ctx).First(&m, stateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tickers := m.Tickers
	if tickers == nil {
		tickers = map[string]int{}
	}
	return &entity.State{
		Date:            m.Date,
		DailyRequests:   m.DailyRequests,
		Tickers:         tickers,
		Tokens:          m.Tokens,
		TokensUpdatedAt: m.TokensUpdatedAt.UTC(),
	}, nil
}

func (r *stateGorm) Save(ctx context.Context, s entity.State) error {
	m := GovernorStateModel{
		ID:              stateRowID,
		Date:            s.Date,
		DailyRequests:   s.DailyRequests,
		Tickers:         s.Tickers,
		Tokens:          s.Tokens,
		TokensUpdatedAt: s.TokensUpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}
