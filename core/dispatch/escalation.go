package dispatch

import (
	"strings"
	"unicode/utf8"

	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/model"
)

// Escalation reasons.
const (
	ReasonOversizedStatement = "oversized_statement"
	ReasonMultiLocale        = "multi_locale"
	ReasonElasticScope       = "elastic_scope"
)

// EscalationReasons evaluates the static risk signals of opp.
func EscalationReasons(opp model.Opportunity, cfg EscalationConfig) []string {
	var reasons []string
	if cfg.MaxStatementLength > 0 && utf8.RuneCountInString(opp.ProblemStatement) > cfg.MaxStatementLength {
		reasons = append(reasons, ReasonOversizedStatement)
	}
	if len(distinct(opp.Locales)) > 1 {
		reasons = append(reasons, ReasonMultiLocale)
	}
	if opp.ElasticScope || mentionsAny(opp.ProblemStatement, cfg.ElasticKeywords) {
		reasons = append(reasons, ReasonElasticScope)
	}
	return reasons
}

// EscalationCheck logs and publishes the matched reasons. It never blocks
// dispatch.
func (d *Dispatcher) EscalationCheck(opp model.Opportunity) []string {
	reasons := EscalationReasons(opp, d.cfg.Escalation)
	if len(reasons) == 0 {
		return nil
	}
	d.log.Infow("escalation", logger.Fields{
		"opportunity_id": opp.ID,
		"reasons":        reasons,
	})
	d.publish(events.EscalationEvent{OpportunityID: opp.ID, Reasons: reasons, Time: d.now()})
	return reasons
}

func distinct(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// mentionsAny matches keywords on word boundaries, case-insensitively.
func mentionsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), isSeparator), " ") + " "
	for _, k := range keywords {
		k = strings.Join(strings.FieldsFunc(strings.ToLower(k), isSeparator), " ")
		if k != "" && strings.Contains(lower, " "+k+" ") {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	switch r {
	case '-', '\'':
		return false
	}
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}
