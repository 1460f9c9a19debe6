//go:build !sqlite
// +build !sqlite

package eventstore

import (
	"errors"

	logx "reaperd/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite eventstore not built: build with -tags sqlite")
}
