/*Package core defines the shared vocabulary of the sensorhub catalogue:
the operations a resource supports and the notifier interface for
catalogue change events.
*/
package core

import (
	"encoding/json"
	"fmt"
)

// Operation represents a backend operation on a catalogue resource
type Operation string

// all supported catalogue operations
const (
	OperationCreate  Operation = "create"
	OperationRead    Operation = "read"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationArchive Operation = "archive"
	OperationRestore Operation = "restore"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete,
		OperationArchive, OperationRestore:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Notifier is an interface to receive catalogue change notifications
type Notifier interface {
	Notify(resource string, operation Operation, payload []byte)
}
