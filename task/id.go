package task

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
)

// ID identifies a single attempt at executing one stage of a distributed
// query on one worker. The Instance field is regenerated on every Create
// call so peers can detect that a worker restarted mid-query even when the
// (Query, Stage, Partition, Attempt) tuple is reused.
type ID struct {
	Query     string
	Stage     string
	Partition int
	Attempt   int
	Instance  string
}

// NewID builds an ID for the given stage coordinates, minting a fresh
// instance UUID.
func NewID(query, stage string, partition, attempt int) (ID, error) {
	instance, err := uuid.GenerateUUID()
	if err != nil {
		return ID{}, fmt.Errorf("generate task instance id: %w", err)
	}
	return ID{
		Query:     query,
		Stage:     stage,
		Partition: partition,
		Attempt:   attempt,
		Instance:  instance,
	}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%s.%s.%d.%d::%s", id.Query, id.Stage, id.Partition, id.Attempt, id.Instance)
}
