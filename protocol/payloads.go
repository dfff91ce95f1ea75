package protocol

import "github.com/hazyhaar/scrollguard/settings"

// ScrollSettings is the SETTINGS_UPDATED payload. Values are left untyped
// on the wire: a settings UI may send strings or out-of-range numbers, and
// the tracker validates at the point of consumption.
type ScrollSettings struct {
	ScrollThreshold   any `json:"scrollThreshold"`
	TimeWindowSeconds any `json:"timeWindowSeconds"`
}

// SettingsResponse answers GET_SETTINGS with the full settings object.
type SettingsResponse = settings.Settings

// TipsResponse answers GET_TIPS.
type TipsResponse struct {
	Tips []string `json:"tips"`
}

// UpdateTodosRequest is the UPDATE_TODOS payload.
type UpdateTodosRequest struct {
	Todos []settings.Todo `json:"todos"`
}

// SuccessResponse answers UPDATE_TODOS.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// PremiumResponse answers CHECK_PREMIUM.
type PremiumResponse struct {
	IsPremium bool `json:"isPremium"`
}
