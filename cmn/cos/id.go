package cos

// Short, human-friendly run identifiers for tagging logs and metrics across
// a server/client pair in the same coupling run, the same shape the teacher
// uses for daemon/session IDs (cmn/cos/uuid.go's use of shortid + xxhash).

import (
	"sync"

	"github.com/teris-io/shortid"
)

const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

// GenRunID returns a short (9-char) identifier suitable for correlating the
// acceptor's and a requester's log lines and metrics for one coupling run.
func GenRunID() string {
	sidOnce.Do(func() {
		sid = shortid.MustNew(1, idABC, 0)
	})
	id, err := sid.Generate()
	if err != nil {
		return "unknown"
	}
	return id
}
