// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/orderbell/internal/core/feed"
)

// Required validates a value is non-empty after trimming whitespace.
func Required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

// Kind validates a change kind is one a feed can deliver.
func Kind(k feed.Kind) error {
	switch k {
	case feed.KindInsert, feed.KindUpdate, feed.KindDelete:
		return nil
	case "":
		return fmt.Errorf("is required")
	default:
		return fmt.Errorf("unknown type %q (expected INSERT, UPDATE or DELETE)", string(k))
	}
}

// Change checks that c is well formed enough to hand to the engine. It
// does not judge whether the change produces a notification.
func Change(c feed.Change) error {
	return criterio.ValidateStruct(
		criterio.Run("type", c.Kind, Kind),
		criterio.Run("table", c.Table, Required),
		criterio.Run("record.id", c.New.ID.String(), Required),
	)
}
