package engine

import "github.com/stagehand-bot/stagehand/internal/conversation"

// Template names consumed by the delivery collaborator. Each state has
// exactly one canonical template; the special templates cover timeout and
// the two rejection paths.
const (
	TemplateWelcome                 = "welcome_template"
	TemplateUserTypeSelection       = "user_type_selection_template"
	TemplateStudioHeadMenu          = "studio_head_menu_template"
	TemplateParentMenu              = "parent_menu_template"
	TemplateDancerMenu              = "dancer_menu_template"
	TemplateCompetitionRegistration = "competition_registration_template"
	TemplateDancerRegistration      = "dancer_registration_template"
	TemplateLicenseRenewal          = "license_renewal_template"

	TemplateTimeout         = "timeout_template"
	TemplateInvalidUserType = "invalid_user_type_template"
	TemplateInvalidOption   = "invalid_option_template"
	TemplateError           = "error_template"
)

var stateTemplates = map[conversation.State]string{
	conversation.StateStart:                   TemplateWelcome,
	conversation.StateUserTypeSelection:       TemplateUserTypeSelection,
	conversation.StateStudioHeadMenu:          TemplateStudioHeadMenu,
	conversation.StateParentMenu:              TemplateParentMenu,
	conversation.StateDancerMenu:              TemplateDancerMenu,
	conversation.StateCompetitionRegistration: TemplateCompetitionRegistration,
	conversation.StateDancerRegistration:      TemplateDancerRegistration,
	conversation.StateLicenseRenewal:          TemplateLicenseRenewal,
}

// TemplateFor returns the canonical template for a state. Unmapped states
// (including the terminal end state) fall back to the generic error
// template.
func TemplateFor(s conversation.State) string {
	if tpl, ok := stateTemplates[s]; ok {
		return tpl
	}
	return TemplateError
}
