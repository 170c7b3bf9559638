package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/npezzotti/ride-relay/internal/config"
	"github.com/teris-io/shortid"
)

// ConnIdGenerator assigns the opaque id of a newly accepted connection.
type ConnIdGenerator func() (string, error)

func NewConnIdGenerator(format string) (ConnIdGenerator, error) {
	switch format {
	case config.ConnIdShort:
		return shortid.Generate, nil
	case config.ConnIdUUID:
		return func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown connection id format %q", format)
	}
}
