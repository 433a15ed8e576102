package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/services/sender"
)

// ChromeDriver delivers messages through WhatsApp Web in a real Chrome
// instance. One browser is launched per job and torn down when the job
// finishes; pacing between recipients is enforced with a rate limiter.
type ChromeDriver struct {
	cfg      common.WhatsAppConfig
	headless bool
	limiter  *rate.Limiter
	session  *Session
	logger   arbor.ILogger
}

// NewChromeDriver builds the browser driver. sendEvery is the minimum
// interval between consecutive recipients.
func NewChromeDriver(cfg common.WhatsAppConfig, sendEvery time.Duration, headless bool, session *Session, logger arbor.ILogger) *ChromeDriver {
	if sendEvery <= 0 {
		sendEvery = 1500 * time.Millisecond
	}
	if session == nil {
		session = NewSession()
	}
	return &ChromeDriver{
		cfg:      cfg,
		headless: headless,
		limiter:  rate.NewLimiter(rate.Every(sendEvery), 1),
		session:  session,
		logger:   logger,
	}
}

// Session exposes the status tracker shared with the HTTP handlers.
func (d *ChromeDriver) Session() *Session {
	return d.session
}

func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", d.cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 800),
		chromedp.UserAgent(d.cfg.UserAgent),
	)
}

// sendURL builds the deep link that opens a chat with the text prefilled.
func sendURL(base, phone, text string) string {
	return fmt.Sprintf("%s/send?phone=%s&text=%s",
		base, url.QueryEscape(phone), url.QueryEscape(text))
}

// Run executes the full delivery sequence for one job. The returned
// slice holds phone numbers WhatsApp rejected as invalid.
func (d *ChromeDriver) Run(ctx context.Context, spec sender.RunSpec, log sender.JobLog) ([]string, error) {
	baseURL := spec.TargetURL
	if baseURL == "" {
		baseURL = d.cfg.BaseURL
	}
	navTimeout := common.ParseDurationOr(d.cfg.NavigationTimeout, 60*time.Second)
	pollTimeout := common.ParseDurationOr(d.cfg.DeliveryPollTimeout, 20*time.Second)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	defer d.session.setState(SessionIdle)

	if err := d.authenticate(browserCtx, baseURL, navTimeout, log); err != nil {
		return nil, fmt.Errorf("whatsapp login: %w", err)
	}

	var failed []string
	for _, rcpt := range spec.Recipients {
		if err := d.limiter.Wait(browserCtx); err != nil {
			return failed, err
		}

		ok, err := d.sendTo(browserCtx, baseURL, rcpt.Phone, rcpt.Message, rcpt.ImagePath, spec, navTimeout, pollTimeout, log)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed = append(failed, rcpt.Phone)
		}
	}

	d.logout(browserCtx, log)
	return failed, nil
}

// authenticate opens the login page, publishes the QR screenshot to the
// job log, and waits for the session header. The header wait is
// deliberately unbounded: scanning a QR code takes as long as it takes.
func (d *ChromeDriver) authenticate(ctx context.Context, baseURL string, navTimeout time.Duration, log sender.JobLog) error {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(baseURL)); err != nil {
		return fmt.Errorf("navigate %s: %w", baseURL, err)
	}

	log.Infof("Please scan QR and wait for WhatsApp Web to load...")
	d.session.setState(SessionWaitingForQR)
	d.publishQR(ctx, log)

	if err := chromedp.Run(ctx, chromedp.WaitVisible(selHeader, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for session header: %w", err)
	}
	d.session.setState(SessionAuthenticated)

	// Dismiss the optional interstitial if the account shows one.
	clickCtx, cancelClick := context.WithTimeout(ctx, 2*time.Second)
	defer cancelClick()
	if err := chromedp.Run(clickCtx, chromedp.Click(selContinueButton, chromedp.BySearch)); err == nil {
		log.Infof("Clicked Continue")
	}
	return nil
}

// publishQR captures the login page and pushes it into the job log as an
// inline image so the stream client can render the QR code. A capture
// failure is not fatal; the operator can still scan the real browser.
func (d *ChromeDriver) publishQR(ctx context.Context, log sender.JobLog) {
	capCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(capCtx,
		chromedp.WaitVisible(selQRCanvas, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		}),
	)
	if err != nil {
		d.logger.Warn().Err(err).Msg("QR screenshot capture failed")
		return
	}

	encoded := base64.StdEncoding.EncodeToString(buf)
	d.session.setQR(encoded)
	log.Image("png", encoded)
}

// sendTo delivers one message. Returns false (with nil error) when
// WhatsApp flags the number as invalid.
func (d *ChromeDriver) sendTo(ctx context.Context, baseURL, phone, message, rowImage string, spec sender.RunSpec, navTimeout, pollTimeout time.Duration, log sender.JobLog) (bool, error) {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(sendURL(baseURL, phone, message)),
		chromedp.WaitVisible(selHeader, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("open chat for %s: %w", phone, err)
	}

	if d.isInvalidNumber(ctx) {
		log.Warnf("%s invalid. Skipping.", phone)
		return false, nil
	}

	if err := d.attachFiles(ctx, phone, rowImage, spec, log); err != nil {
		log.Warnf("Attachment upload failed for %s: %v", phone, err)
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, navTimeout)
	defer cancelSend()
	err = chromedp.Run(sendCtx,
		chromedp.KeyEvent(kb.Enter),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("send keystroke for %s: %w", phone, err)
	}

	d.reportDelivery(ctx, phone, pollTimeout, log)
	return true, nil
}

func (d *ChromeDriver) isInvalidNumber(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return chromedp.Run(checkCtx, chromedp.WaitVisible(selInvalidNumber, chromedp.ByQuery)) == nil
}

// attachFiles uploads the per-row image plus any job-wide images and
// document through the hidden file input.
func (d *ChromeDriver) attachFiles(ctx context.Context, phone, rowImage string, spec sender.RunSpec, log sender.JobLog) error {
	var files []string
	if rowImage != "" {
		files = append(files, rowImage)
	}
	files = append(files, spec.ImagePaths...)
	if spec.DocumentPath != "" {
		files = append(files, spec.DocumentPath)
	}
	if len(files) == 0 {
		return nil
	}

	upCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err := chromedp.Run(upCtx,
		chromedp.SetUploadFiles(selAttachInput, files, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return err
	}
	log.Infof("Attached %d file(s) for %s", len(files), phone)
	return nil
}

// reportDelivery polls the last outgoing bubble for a check mark and
// logs the outcome. Delivery timeouts are reported, never fatal.
func (d *ChromeDriver) reportDelivery(ctx context.Context, phone string, pollTimeout time.Duration, log sender.JobLog) {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	deadline := time.Now().Add(pollTimeout)
	for {
		var hasCheck bool
		if err := chromedp.Run(pollCtx, chromedp.Evaluate(jsLastOutgoingHasCheck, &hasCheck)); err != nil {
			log.Warnf("%s may not be delivered (timeout)", phone)
			return
		}
		if hasCheck {
			log.Successf("%s message sent (check mark detected)", phone)
			return
		}
		if time.Now().After(deadline) {
			log.Warnf("%s sent but no checkmark found", phone)
			return
		}
		select {
		case <-pollCtx.Done():
			log.Warnf("%s may not be delivered (timeout)", phone)
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// logout ends the WhatsApp Web session so the next job starts from a
// fresh QR scan. Failures are logged and swallowed; the messages are
// already out.
func (d *ChromeDriver) logout(ctx context.Context, log sender.JobLog) {
	logoutTimeout := common.ParseDurationOr(d.cfg.LogoutTimeout, 15*time.Second)
	outCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()

	err := chromedp.Run(outCtx,
		chromedp.Evaluate(jsUseHereClick, nil),
		chromedp.Click(selMenuButton, chromedp.ByQuery),
		chromedp.Click(selLogoutItem, chromedp.BySearch),
		chromedp.Click(selLogoutItem, chromedp.BySearch),
		chromedp.WaitVisible(selQRCanvas, chromedp.ByQuery),
	)
	if err != nil {
		log.Warnf("Logout step skipped or failed: %v", err)
		d.session.setState(SessionIdle)
		return
	}
	log.Infof("Logged out")
	d.session.setState(SessionLoggedOut)
}
