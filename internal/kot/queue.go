package kot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/printer"
	"github.com/tablemaster-pos/engine/internal/store"
)

// ErrNoPrinter means no usable kitchen printer resolved; auto-dispatch is
// skipped, queued jobs stay put.
var ErrNoPrinter = errors.New("no network kitchen printer configured")

// Printer ships a rendered document. Satisfied by *printer.Client.
type Printer interface {
	Print(ctx context.Context, p model.PrinterSetting, doc string) error
}

// Config selects the dispatch mode.
type Config struct {
	Mode      string // enum.KOTModeImmediate or enum.KOTModeBatch
	Threshold int    // batch flush threshold
}

// Queue batches kitchen order tickets. In immediate mode every Preparing
// order prints its own ticket synchronously; in batch mode orders accumulate
// and one consolidated ticket prints when the queue first reaches the
// threshold. A failed flush re-inserts the whole batch at the queue head so
// no job is lost; the next flush (manual or the next threshold crossing)
// picks them up again.
type Queue struct {
	cfg      Config
	printers store.PrinterStore
	client   Printer
	renderer *printer.Renderer
	log      zerolog.Logger

	mu   sync.Mutex
	jobs []model.Order
}

func NewQueue(cfg Config, printers store.PrinterStore, client Printer, renderer *printer.Renderer, log zerolog.Logger) *Queue {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Queue{
		cfg:      cfg,
		printers: printers,
		client:   client,
		renderer: renderer,
		log:      log,
	}
}

// Enqueue is called on every transition to Preparing.
func (q *Queue) Enqueue(ctx context.Context, order model.Order) error {
	if q.cfg.Mode == enum.KOTModeImmediate {
		return q.printSingle(ctx, order)
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, order)
	shouldFlush := len(q.jobs) >= q.cfg.Threshold
	q.mu.Unlock()

	if shouldFlush {
		return q.flush(ctx, true)
	}
	return nil
}

// Flush is the manual entry point: it prints one consolidated ticket for
// everything queued, falling back to the OS dialog when only a non-network
// printer is configured.
func (q *Queue) Flush(ctx context.Context) error {
	return q.flush(ctx, false)
}

// flush clears the queue before printing; on failure the snapshot is
// re-inserted at the head of the (possibly-since-grown) queue and no
// automatic retry happens.
func (q *Queue) flush(ctx context.Context, auto bool) error {
	q.mu.Lock()
	batch := q.jobs
	q.jobs = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := q.printBatch(ctx, batch, auto)
	if err != nil {
		q.mu.Lock()
		q.jobs = append(batch, q.jobs...)
		q.mu.Unlock()
		q.log.Warn().Err(err).Int("jobs", len(batch)).Msg("KOT flush failed, batch requeued")
		return err
	}
	return nil
}

// Drain flushes whatever is pending; called on shutdown.
func (q *Queue) Drain(ctx context.Context) error {
	return q.Flush(ctx)
}

// PendingCount reports queued jobs awaiting a flush.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) printSingle(ctx context.Context, order model.Order) error {
	p, err := q.resolvePrinter(ctx, true)
	if err != nil {
		if errors.Is(err, ErrNoPrinter) {
			q.log.Info().Str("order", order.ID).Msg("KOT auto-dispatch skipped, no printer")
			return nil
		}
		return err
	}
	doc := q.renderer.RenderKOT(order, p)
	if err := q.client.Print(ctx, p, doc); err != nil {
		return fmt.Errorf("print KOT for %s: %w", order.ID, err)
	}
	return nil
}

func (q *Queue) printBatch(ctx context.Context, batch []model.Order, auto bool) error {
	p, err := q.resolvePrinter(ctx, auto)
	if err != nil {
		return err
	}
	doc := q.renderer.RenderConsolidatedKOT(batch, p)
	if err := q.client.Print(ctx, p, doc); err != nil {
		return fmt.Errorf("print consolidated KOT: %w", err)
	}
	return nil
}

// resolvePrinter prefers the Chef KOT printer, falling back to the main
// default. With requireNetwork set (the automatic path) a non-network
// printer is refused: auto-dispatch never drops to an OS dialog, only
// manual/test prints do.
func (q *Queue) resolvePrinter(ctx context.Context, requireNetwork bool) (model.PrinterSetting, error) {
	printers, err := q.printers.ListPrinterSettings(ctx)
	if err != nil {
		return model.PrinterSetting{}, fmt.Errorf("list printers: %w", err)
	}

	var resolved *model.PrinterSetting
	for i := range printers {
		if printers[i].Role == enum.PrinterRoleChefKOT {
			resolved = &printers[i]
			break
		}
	}
	if resolved == nil {
		for i := range printers {
			if printers[i].Role == enum.PrinterRoleMain {
				resolved = &printers[i]
				break
			}
		}
	}
	if resolved == nil {
		return model.PrinterSetting{}, ErrNoPrinter
	}
	if requireNetwork && resolved.ConnectionType != enum.ConnectionTypeNetwork {
		return model.PrinterSetting{}, ErrNoPrinter
	}
	return *resolved, nil
}
