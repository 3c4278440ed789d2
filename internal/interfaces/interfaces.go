package interfaces

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wifi-rtt-sync/internal/models"
)

// StatusSource reports the grants and platform generation of the device
// that owns the radio. An error is treated by the workflow like a denial.
type StatusSource interface {
	Status(ctx context.Context) (*models.AgentStatus, error)
}

// ScanSource produces one snapshot of the currently visible access
// points. An empty list is a valid snapshot; an error means the platform
// rejected the scan itself.
type ScanSource interface {
	Scan(ctx context.Context) (*models.ScanSnapshot, error)
}

// RangingSource issues one asynchronous distance measurement for the
// given responder-capable BSSIDs. The returned channel delivers exactly
// one outcome, success or failure, unless ctx is cancelled first.
type RangingSource interface {
	Range(ctx context.Context, bssids []string) (<-chan models.RangingOutcome, error)
}

type IMqClient interface {
	PublishJson(topic string, data interface{}) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Disconnect(ctx context.Context)
	Connect(ctx context.Context) error
}

type ITableListener interface {
	GetTableName() string
	HandleChange(ctx context.Context, event *TableChangeEvent) error
}

type IListenerManager interface {
	RegisterListener(listener ITableListener) error
	Initialize() error
	Start()
	Stop()
}

type OperationType string

const (
	InsertOperation OperationType = "INSERT"
	UpdateOperation OperationType = "UPDATE"
	DeleteOperation OperationType = "DELETE"
)

type TableChangeEvent struct {
	Operation OperationType          `json:"operation"`
	Table     string                 `json:"table"`
	OldData   map[string]interface{} `json:"old_data,omitempty"`
	NewData   map[string]interface{} `json:"new_data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (t *TableChangeEvent) GetData() ([]byte, []byte, error) {
	newData, err := json.Marshal(t.NewData)
	if err != nil {
		return nil, nil, err
	}

	oldData, err := json.Marshal(t.OldData)
	if err != nil {
		return nil, nil, err
	}

	return newData, oldData, nil
}
