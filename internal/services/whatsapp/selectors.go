package whatsapp

// WhatsApp Web markup changes often. Every selector the driver relies on
// lives here so a layout change is a one-file fix.
const (
	// selHeader appears once the main chat UI has finished loading,
	// both on the login page after scanning and on a chat page.
	selHeader = `header`

	// selQRCanvas is the QR code canvas shown before authentication.
	selQRCanvas = `[aria-label*="Scan this QR code"], canvas[aria-label]`

	// selContinueButton is the optional interstitial shown on some
	// accounts after login.
	selContinueButton = `//button[contains(., 'Continue')]`

	// selInvalidNumber is the toast raised when the phone query
	// parameter does not resolve to an account.
	selInvalidNumber = `[aria-label="Phone number shared via url is invalid."]`

	// selAttachInput is the hidden file input behind the attach menu.
	selAttachInput = `input[type="file"]`

	// selMenuButton and selLogoutItem drive the logout sequence.
	selMenuButton = `[title="Menu"]`
	selLogoutItem = `//div[text()='Log out']`

	// jsLastOutgoingHasCheck counts delivery check icons on the most
	// recent outgoing message bubble.
	jsLastOutgoingHasCheck = `(function() {
		const out = document.querySelectorAll('div.message-out');
		if (!out.length) return false;
		const last = out[out.length - 1];
		return last.querySelectorAll('[data-icon="msg-check"], [data-icon="msg-dblcheck"]').length > 0;
	})()`

	// jsUseHereClick dismisses the "WhatsApp is open in another window"
	// conflict dialog if present.
	jsUseHereClick = `(function() {
		const els = Array.from(document.querySelectorAll('div[role="button"], button'));
		const btn = els.find(e => e.textContent && e.textContent.trim() === 'Use here');
		if (btn) { btn.click(); return true; }
		return false;
	})()`
)
