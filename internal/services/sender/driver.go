package sender

import (
	"context"

	"github.com/ternarybob/nuntio/internal/models"
)

// JobLog is the publish handle a driver writes progress through. It is
// the only channel a running job communicates over once started.
type JobLog interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Successf(format string, args ...interface{})
	Image(imageType, base64Data string)
}

// RunSpec is everything a driver needs to execute one send job. The
// recipient list is already normalized and template-expanded.
type RunSpec struct {
	JobID        string
	TargetURL    string // automation entry point; empty means the driver default
	Recipients   []models.Recipient
	ImagePaths   []string // attachments sent to every recipient
	DocumentPath string   // optional document attachment
}

// Driver executes the browser automation for one job. Run blocks until
// the job finishes and returns the phone numbers that could not be
// delivered. Per-recipient failures are log lines, never errors; a
// returned error means the whole session failed.
//
// A driver instance may serve many jobs concurrently, but each Run call
// owns one serialized browser session: recipients are processed strictly
// one at a time.
type Driver interface {
	Run(ctx context.Context, spec RunSpec, log JobLog) (failed []string, err error)
}

// ScriptedDriver walks the send sequence without a browser, emitting the
// same log line shapes the real driver produces. Used by tests and when
// whatsapp.driver = "scripted".
type ScriptedDriver struct {
	// FailPhones lists recipients the scripted run reports as invalid.
	FailPhones map[string]bool
}

// Run implements Driver.
func (d *ScriptedDriver) Run(ctx context.Context, spec RunSpec, log JobLog) ([]string, error) {
	log.Infof("Ready (scripted driver, no browser attached)")

	var failed []string
	for _, rec := range spec.Recipients {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if d.FailPhones[rec.Phone] {
			failed = append(failed, rec.Phone)
			log.Errorf("%s invalid. Skipping.", rec.Phone)
			continue
		}
		log.Successf("%s message sent (check mark detected)", rec.Phone)
	}

	log.Infof("Logged out")
	return failed, nil
}
