package email

import (
	"context"
	"sort"
	"strings"

	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/pkg/logger"
)

// Sender renders notifications. Delivery is a structured log line; an SMTP
// transport is out of scope for this service.
type Sender struct {
	from string
	log  *logger.Logger
}

func NewSender(from string, log *logger.Logger) *Sender {
	if log == nil {
		log = logger.Nop()
	}
	return &Sender{from: from, log: log.With("component", "email")}
}

func (s *Sender) Send(ctx context.Context, n kafka.Notification) error {
	s.log.InfoContext(ctx, "send email",
		"from", s.from,
		"to", n.Email,
		"type", n.Type,
		"subject", n.Subject,
		"body", Render(n),
	)
	return nil
}

// Render produces the plain text body: a greeting followed by one
// "key: value" line per field, sorted by key.
func Render(n kafka.Notification) string {
	var b strings.Builder
	if n.Name != "" {
		b.WriteString("Hola " + n.Name + ",\n\n")
	}
	b.WriteString(n.Subject + "\n")

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k + ": " + n.Fields[k] + "\n")
	}
	return b.String()
}
