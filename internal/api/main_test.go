package api_test

import (
	"os"
	"testing"

	"github.com/vytor/lexisync/internal/logger"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.Discard())
	os.Exit(m.Run())
}
