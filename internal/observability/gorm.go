package observability

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// InstrumentDB registers the GORM tracing plugin on db. Query variables are
// dropped from spans: conversation state and user names flow through them.
func InstrumentDB(db *gorm.DB, driver string) error {
	opts := []tracing.Option{tracing.WithoutQueryVariables(), tracing.WithoutMetrics()}
	if driver != "" {
		opts = append(opts, tracing.WithDBSystem(driver))
	}
	if err := db.Use(tracing.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("gorm tracing: %w", err)
	}
	return nil
}
