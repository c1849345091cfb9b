package app

import (
	"fmt"

	"drive-go/internal/drive"
)

// Operation statuses as stored in the operations table.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks the CLI command being run. It starts in memory with
// ID=0; only commands that change remote or local state persist it, so
// their upload and export records can point back to it.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates an in-memory operation that succeeds unless Fail
// is called.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted reports whether the operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. It is recorded when the app closes.
func (op *Operation) Fail() {
	op.Status = StatusError
}

// persist saves the operation once, giving it an ID.
func (op *Operation) persist(db drive.Database) error {
	if op.Persisted() {
		return nil
	}
	row, err := db.CreateOperation(op.Name, op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	op.ID = row.ID
	return nil
}

// finish records the final status of a persisted operation.
func (op *Operation) finish(db drive.Database) error {
	if !op.Persisted() {
		return nil
	}
	if err := db.FinishOperation(op.ID, op.Status); err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}
