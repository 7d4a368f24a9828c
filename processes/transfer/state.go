package transfer

// TableState tracks a table through a single run. There is no persistence, the staged
// file's location in the bucket is the only durable record of where a table ended up.
type TableState string

const (
	StatePending      TableState = "PENDING"
	StateExported     TableState = "EXPORTED"
	StateLoaded       TableState = "LOADED"
	StateExportFailed TableState = "EXPORT_FAILED"
	StateQuarantined  TableState = "QUARANTINED"
)

func (t TableState) Terminal() bool {
	switch t {
	case StateLoaded, StateExportFailed, StateQuarantined:
		return true
	}

	return false
}

func (t TableState) Succeeded() bool {
	return t == StateLoaded
}
