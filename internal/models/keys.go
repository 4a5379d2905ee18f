package models

// Store keys. Everything except KeyPending lives in the durable space.
const (
	KeyHistory       = "rb_block_db_v1"
	KeyPending       = "rb_pending_users"
	KeyStatus        = "rb_bg_status"
	KeyQueue         = "rb_active_queue"
	KeyFailed        = "rb_failed_queue"
	KeyCommand       = "rb_bg_command"
	KeyMode          = "rb_mac_mode"
	KeyCooldownUntil = "rb_rate_limit_until"
	KeyVersion       = "rb_version_check"
	KeyDisclaimer    = "rb_disclaimer_agreed_v2_1"
	KeyPanelState    = "rb_panel_state"
	KeyReturnURL     = "rb_return_url"
)

// SharedKeys are the keys another context may change under us
var SharedKeys = []string{KeyHistory, KeyStatus, KeyQueue, KeyFailed, KeyCommand, KeyMode, KeyCooldownUntil}
