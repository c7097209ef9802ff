// Package validation applies configurable threshold rules and stateful
// anomaly detectors to decoded vehicle-telemetry messages.
package validation

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Severity defines the rule / violation severity.
type Severity string

// Available severities.
const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Operator defines the comparison operator of a rule.
type Operator string

// Available operators.
const (
	OperatorLT Operator = "<"
	OperatorGT Operator = ">"
	OperatorEQ Operator = "=="
	OperatorNE Operator = "!="
	OperatorLE Operator = "<="
	OperatorGE Operator = ">="
)

// Rule defines a single static threshold rule. Rules are immutable once
// loaded, reloads swap the full rule set.
type Rule struct {
	Name        string   `mapstructure:"name"`
	MsgType     string   `mapstructure:"msg_type"`
	Field       string   `mapstructure:"field"`
	Operator    Operator `mapstructure:"operator"`
	Threshold   float64  `mapstructure:"threshold"`
	Severity    Severity `mapstructure:"severity"`
	Description string   `mapstructure:"description"`
}

// Validate validates the rule record.
func (r Rule) Validate() error {
	if r.Name == "" || r.MsgType == "" || r.Field == "" {
		return errors.New("name, msg_type and field must not be empty")
	}

	switch r.Operator {
	case OperatorLT, OperatorGT, OperatorEQ, OperatorNE, OperatorLE, OperatorGE:
	default:
		return fmt.Errorf("unknown operator: %s", r.Operator)
	}

	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("unknown severity: %s", r.Severity)
	}

	return nil
}

// match evaluates the rule operator against the actual value.
func (r Rule) match(actual float64) bool {
	switch r.Operator {
	case OperatorLT:
		return actual < r.Threshold
	case OperatorGT:
		return actual > r.Threshold
	case OperatorEQ:
		return actual == r.Threshold
	case OperatorNE:
		return actual != r.Threshold
	case OperatorLE:
		return actual <= r.Threshold
	case OperatorGE:
		return actual >= r.Threshold
	default:
		return false
	}
}

// LoadRules loads the rule set from the given file (yaml, toml or json,
// detected by extension).
func LoadRules(path string) ([]Rule, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read rules file error")
	}

	var rules []Rule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, errors.Wrap(err, "unmarshal rules error")
	}

	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, errors.Wrapf(err, "rule %d (%s) invalid", i, r.Name)
		}
	}

	return rules, nil
}

// WatchRules watches the rules file and reloads it into the engine on
// change. A reload that fails to parse keeps the active rule set. The
// returned stop function closes the watcher.
func WatchRules(path string, e *Engine) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "new watcher error")
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "watch rules file error")
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				rules, err := LoadRules(path)
				if err != nil {
					log.WithError(err).WithFields(log.Fields{
						"path": path,
					}).Error("validation: rules reload error, keeping active rule set")
					continue
				}

				e.SetRules(rules)
				log.WithFields(log.Fields{
					"path":  path,
					"rules": len(rules),
				}).Info("validation: rules reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Error("validation: rules watcher error")
			}
		}
	}()

	return watcher.Close, nil
}
