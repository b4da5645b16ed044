package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/catalog"
	"github.com/lims/lims/internal/domain/order"
	"github.com/lims/lims/internal/domain/result"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/workitem"
	"github.com/lims/lims/internal/platform/metrics"
	"github.com/lims/lims/internal/platform/middleware"
)

// Gateway moves work items across the wire: orders out to analyzers,
// results back in. Every exchange lands in the communication log.
type Gateway struct {
	instruments InstrumentRepository
	logs        CommLogRepository
	client      *Client
	items       *workitem.Service
	results     *result.Service
	orders      *order.Service
	specimens   *specimen.Service
	catalog     *catalog.Service
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewGateway(instruments InstrumentRepository, logs CommLogRepository, client *Client,
	items *workitem.Service, results *result.Service, orders *order.Service,
	specimens *specimen.Service, cat *catalog.Service, m *metrics.Metrics,
	logger zerolog.Logger) *Gateway {
	return &Gateway{
		instruments: instruments,
		logs:        logs,
		client:      client,
		items:       items,
		results:     results,
		orders:      orders,
		specimens:   specimens,
		catalog:     cat,
		metrics:     m,
		logger:      logger,
	}
}

func (g *Gateway) logComm(ctx context.Context, instrumentID uuid.UUID, workItemID uuid.UUID,
	direction, payload string, responseCode *int, errText *string) {
	l := &CommunicationLog{
		InstrumentID: instrumentID,
		WorkItemID:   &workItemID,
		Direction:    direction,
		Payload:      payload,
		ResponseCode: responseCode,
		Error:        errText,
	}
	if err := g.logs.Append(ctx, l); err != nil {
		g.logger.Error().Err(err).Str("work_item_id", workItemID.String()).
			Msg("appending communication log failed")
	}
}

func (g *Gateway) buildPayload(ctx context.Context, item *workitem.WorkItem) (*QueuePayload, error) {
	ord, err := g.orders.Get(ctx, item.OrderID)
	if err != nil {
		return nil, fmt.Errorf("loading order for work item %s: %w", item.ID, err)
	}

	payload := &QueuePayload{
		PatientID: ord.PatientRef,
		TestCode:  item.TestCode,
		RequestID: ord.OrderID,
		Priority:  ord.Priority,
		Metadata:  QueueMetadata{WorkItemID: item.ID.String()},
	}
	if item.DepartmentID != nil {
		payload.Metadata.DepartmentID = item.DepartmentID.String()
	}

	if item.SpecimenID != nil {
		sp, err := g.specimens.Get(ctx, *item.SpecimenID)
		if err != nil {
			return nil, fmt.Errorf("loading specimen for work item %s: %w", item.ID, err)
		}
		payload.SampleID = sp.SpecimenID
		payload.SpecimenType = sp.Type
	} else if test, err := g.catalog.GetTestByCode(ctx, item.TestCode); err == nil {
		payload.SpecimenType = test.SpecimenType
	}
	return payload, nil
}

// Send submits one dispatchable work item to its analyzer. Transport
// failures bump the item's retry counter and wrap ErrTransient so the
// retry sweep picks the item up later; an outright refusal wraps
// ErrRejected and leaves the counter alone.
func (g *Gateway) Send(ctx context.Context, item *workitem.WorkItem) error {
	if item.InstrumentID == nil {
		return fmt.Errorf("work item %s: %w", item.ID, workitem.ErrNotDispatchable)
	}
	in, err := g.instruments.GetByID(ctx, *item.InstrumentID)
	if err != nil {
		return err
	}

	payload, err := g.buildPayload(ctx, item)
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(payload)
	g.logComm(ctx, in.ID, item.ID, DirectionSend, string(raw), nil, nil)

	externalID, code, err := g.client.Queue(ctx, in, payload)
	switch {
	case errors.Is(err, ErrTransient):
		msg := err.Error()
		g.logComm(ctx, in.ID, item.ID, DirectionError, string(raw), nil, &msg)
		if _, ferr := g.items.RecordSendFailure(ctx, item.ID); ferr != nil {
			g.logger.Error().Err(ferr).Str("work_item_id", item.ID.String()).
				Msg("recording send failure failed")
		}
		g.metrics.InstrumentSends.WithLabelValues("transient").Inc()
		g.logger.Warn().Err(err).Str("instrument", in.Code).
			Str("work_item_id", item.ID.String()).Msg("instrument send failed, will retry")
		return err
	case err != nil:
		msg := err.Error()
		g.logComm(ctx, in.ID, item.ID, DirectionError, string(raw), &code, &msg)
		g.metrics.InstrumentSends.WithLabelValues("rejected").Inc()
		g.logger.Error().Err(err).Str("instrument", in.Code).
			Str("work_item_id", item.ID.String()).Msg("instrument rejected order")
		return err
	}

	if _, err := g.items.MarkQueued(ctx, item.ID, externalID); err != nil {
		return err
	}
	g.logComm(ctx, in.ID, item.ID, DirectionReceive,
		fmt.Sprintf(`{"externalId":%q}`, externalID), &code, nil)
	g.metrics.InstrumentSends.WithLabelValues("ok").Inc()
	g.logger.Info().Str("instrument", in.Code).Str("work_item_id", item.ID.String()).
		Str("external_id", externalID).Msg("work item queued on instrument")
	return nil
}

// Fetch pulls the analyzer's record for a queued or running work item.
// It reports whether a result was created: only a completed record enters
// the result table; anything else leaves the item untouched apart from
// the queued to in_progress bump.
func (g *Gateway) Fetch(ctx context.Context, item *workitem.WorkItem) (bool, error) {
	if item.InstrumentID == nil || item.ExternalID == nil {
		return false, fmt.Errorf("work item %s is not on an instrument", item.ID)
	}
	in, err := g.instruments.GetByID(ctx, *item.InstrumentID)
	if err != nil {
		return false, err
	}

	ext, err := g.client.FetchResult(ctx, in, *item.ExternalID)
	if err != nil {
		msg := err.Error()
		g.logComm(ctx, in.ID, item.ID, DirectionError, "", nil, &msg)
		g.metrics.InstrumentFetches.WithLabelValues("error").Inc()
		return false, err
	}
	raw, _ := json.Marshal(ext)
	g.logComm(ctx, in.ID, item.ID, DirectionReceive, string(raw), nil, nil)

	if ext.Status != ResultStatusCompleted {
		if item.Status == workitem.StatusQueued && (ext.Status == "in_progress" || ext.Status == "processing") {
			if _, err := g.items.MarkInProgress(ctx, item.ID); err != nil {
				return false, err
			}
		}
		g.metrics.InstrumentFetches.WithLabelValues("pending").Inc()
		return false, nil
	}

	res := &result.Result{
		WorkItemID: item.ID,
		Value:      ext.ValueString(),
		EnteredBy:  middleware.ActorFromContext(ctx),
	}
	if ext.Unit != "" {
		res.Units = &ext.Unit
	}
	if ext.Remarks != "" {
		res.Remarks = &ext.Remarks
	}

	var minRef, maxRef *float64
	if test, err := g.catalog.GetTestByCode(ctx, item.TestCode); err == nil {
		minRef, maxRef = test.MinRef, test.MaxRef
		if rr := test.ReferenceRange(); rr != "" {
			res.RefRange = &rr
		}
		if res.Units == nil {
			res.Units = test.Units
		}
	}

	if err := g.results.Enter(ctx, res, minRef, maxRef); err != nil {
		return false, err
	}
	if _, err := g.items.MarkAnalyzed(ctx, item.ID); err != nil {
		return false, err
	}
	g.metrics.InstrumentFetches.WithLabelValues("ok").Inc()
	g.logger.Info().Str("instrument", in.Code).Str("work_item_id", item.ID.String()).
		Str("flag", res.Flag).Msg("instrument result captured")
	return true, nil
}
