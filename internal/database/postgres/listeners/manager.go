package listeners

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"wifi-rtt-sync/internal/interfaces"
	"wifi-rtt-sync/internal/observability"
)

// All table triggers notify on this one channel; the per-table fan-out
// happens in handleNotification.
const notifyChannel = "table_events"

const pingInterval = 90 * time.Second

// ListenerManager installs a NOTIFY trigger on every registered table
// and dispatches the change events to the listeners of that table.
type ListenerManager struct {
	db        *gorm.DB
	listener  *pq.Listener
	collector *observability.Collector
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	listeners map[string][]interfaces.ITableListener
}

func NewListenerManager(db *gorm.DB, dsn string, collector *observability.Collector, logger zerolog.Logger) *ListenerManager {
	ctx, cancel := context.WithCancel(context.Background())

	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			collector.ObserveListenerError()
			logger.Error().Err(err).Msg("PostgreSQL listener error")
		}
	}

	return &ListenerManager{
		db:        db,
		listener:  pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem),
		collector: collector,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string][]interfaces.ITableListener),
	}
}

func (lm *ListenerManager) RegisterListener(listener interfaces.ITableListener) error {
	tableName := listener.GetTableName()
	lm.listeners[tableName] = append(lm.listeners[tableName], listener)

	lm.logger.Info().
		Str("table", tableName).
		Msg("Registered table listener")

	return nil
}

// Initialize installs the notify function, one change trigger per
// registered table, and opens the LISTEN channel.
func (lm *ListenerManager) Initialize() error {
	if err := lm.setupTriggers(); err != nil {
		return fmt.Errorf("failed to setup triggers: %w", err)
	}

	if err := lm.listener.Listen(notifyChannel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", notifyChannel, err)
	}

	lm.logger.Info().
		Int("tables", len(lm.listeners)).
		Msg("Listener manager initialized")
	return nil
}

func (lm *ListenerManager) setupTriggers() error {
	createFunctionSQL := fmt.Sprintf(`
	CREATE OR REPLACE FUNCTION notify_table_change() RETURNS trigger AS $$
	DECLARE
		notification json;
		old_data json := NULL;
		new_data json := NULL;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			old_data = row_to_json(OLD);
		ELSIF TG_OP = 'INSERT' THEN
			new_data = row_to_json(NEW);
		ELSIF TG_OP = 'UPDATE' THEN
			old_data = row_to_json(OLD);
			new_data = row_to_json(NEW);
		END IF;

		notification = json_build_object(
			'operation', TG_OP,
			'table', TG_TABLE_NAME,
			'old_data', old_data,
			'new_data', new_data,
			'timestamp', now()
		);

		PERFORM pg_notify('%s', notification::text);

		IF TG_OP = 'DELETE' THEN
			RETURN OLD;
		ELSE
			RETURN NEW;
		END IF;
	END;
	$$ LANGUAGE plpgsql;`, notifyChannel)

	if err := lm.db.Exec(createFunctionSQL).Error; err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	for tableName := range lm.listeners {
		if err := lm.createTriggerForTable(tableName); err != nil {
			return fmt.Errorf("failed to create trigger for table %s: %w", tableName, err)
		}
	}

	return nil
}

func (lm *ListenerManager) createTriggerForTable(tableName string) error {
	triggerSQL := fmt.Sprintf(`
	DROP TRIGGER IF EXISTS %s_change_trigger ON %s;
	CREATE TRIGGER %s_change_trigger
		AFTER INSERT OR UPDATE OR DELETE ON %s
		FOR EACH ROW EXECUTE FUNCTION notify_table_change();`,
		tableName, tableName, tableName, tableName)

	return lm.db.Exec(triggerSQL).Error
}

func (lm *ListenerManager) listenForChanges() {
	for {
		select {
		case notification := <-lm.listener.Notify:
			if notification != nil {
				lm.handleNotification(notification.Extra)
			}
		case <-time.After(pingInterval):
			if err := lm.listener.Ping(); err != nil {
				lm.collector.ObserveListenerError()
				lm.logger.Error().Err(err).Msg("PostgreSQL listener ping failed")
				return
			}
		case <-lm.ctx.Done():
			return
		}
	}
}

func (lm *ListenerManager) handleNotification(payload string) {
	var event interfaces.TableChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		lm.collector.ObserveListenerError()
		lm.logger.Error().Err(err).
			Str("payload", payload).
			Msg("Failed to parse notification")
		return
	}

	lm.collector.ObserveTableEvent(event.Table, string(event.Operation))

	tableListeners, exists := lm.listeners[event.Table]
	if !exists {
		lm.logger.Debug().
			Str("table", event.Table).
			Msg("No listeners registered for table")
		return
	}

	for _, listener := range tableListeners {
		go func(l interfaces.ITableListener) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := l.HandleChange(ctx, &event); err != nil {
				lm.collector.ObserveListenerError()
				lm.logger.Error().Err(err).
					Str("table", event.Table).
					Str("listener", fmt.Sprintf("%T", l)).
					Msg("Error handling table change")
			}
		}(listener)
	}
}

func (lm *ListenerManager) Start() {
	go lm.listenForChanges()
}

func (lm *ListenerManager) Stop() {
	lm.cancel()
	lm.logger.Info().Msg("Table listener manager stopped")
}
