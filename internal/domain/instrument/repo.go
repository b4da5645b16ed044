package instrument

import (
	"context"

	"github.com/google/uuid"
)

type InstrumentRepository interface {
	Create(ctx context.Context, in *Instrument) error
	GetByID(ctx context.Context, id uuid.UUID) (*Instrument, error)
	GetByCode(ctx context.Context, code string) (*Instrument, error)
	Update(ctx context.Context, in *Instrument) error
	ListActive(ctx context.Context) ([]*Instrument, error)
	List(ctx context.Context) ([]*Instrument, error)
}

type CommLogRepository interface {
	Append(ctx context.Context, l *CommunicationLog) error
	ListByInstrument(ctx context.Context, instrumentID uuid.UUID, limit, offset int) ([]*CommunicationLog, int, error)
	ListByWorkItem(ctx context.Context, workItemID uuid.UUID) ([]*CommunicationLog, error)
}
