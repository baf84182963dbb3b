package events

import "sort"

// Category classifies an event name. Derived from the taxonomy at record
// time, never supplied by callers.
type Category string

const (
	CategoryWorkflow Category = "workflow"
	CategoryBusiness Category = "business"
	CategoryUsage    Category = "usage"
	CategorySystem   Category = "system"
)

// Event names accepted by the recorder.
const (
	EventSessionStart         = "session_start"
	EventSessionAuthenticated = "session_authenticated"
	EventPageView             = "page_view"
	EventFileUploaded         = "file_uploaded"
	EventTextInput            = "text_input"
	EventGithubImport         = "github_import"
	EventDocGeneration        = "doc_generation"
	EventDocExported          = "doc_exported"
	EventDocCopied            = "doc_copied"

	EventSignupCompleted    = "signup_completed"
	EventCheckoutStarted    = "checkout_started"
	EventPaymentReceived    = "payment_received"
	EventTrialLifecycle     = "trial_lifecycle"
	EventSubscriptionChange = "subscription_change"

	EventDocTypeSelected   = "doc_type_selected"
	EventTemplateSelected  = "template_selected"
	EventSettingsChanged   = "settings_changed"
	EventFeedbackSubmitted = "feedback_submitted"

	EventGenerationError = "generation_error"
	EventRateLimitHit    = "rate_limit_hit"
	EventWebhookReceived = "webhook_received"
)

// Trial lifecycle and subscription change sub-actions carried in payloads.
const (
	TrialActionStarted   = "started"
	TrialActionConverted = "converted"
	TrialActionExpired   = "expired"

	SubscriptionActionUpgraded   = "upgraded"
	SubscriptionActionDowngraded = "downgraded"
	SubscriptionActionCanceled   = "canceled"
)

// Definition declares how an event name is classified. ActionField names
// the payload key carrying a sub-action, Actions its closed value set.
type Definition struct {
	Category    Category
	ActionField string
	Actions     []string
}

var taxonomy = map[string]Definition{
	EventSessionStart:         {Category: CategoryWorkflow},
	EventSessionAuthenticated: {Category: CategoryWorkflow},
	EventPageView:             {Category: CategoryWorkflow},
	EventFileUploaded:         {Category: CategoryWorkflow},
	EventTextInput:            {Category: CategoryWorkflow},
	EventGithubImport:         {Category: CategoryWorkflow},
	EventDocGeneration:        {Category: CategoryWorkflow},
	EventDocExported:          {Category: CategoryWorkflow},
	EventDocCopied:            {Category: CategoryWorkflow},

	EventSignupCompleted: {Category: CategoryBusiness},
	EventCheckoutStarted: {Category: CategoryBusiness},
	EventPaymentReceived: {Category: CategoryBusiness},
	EventTrialLifecycle: {
		Category:    CategoryBusiness,
		ActionField: "action",
		Actions:     []string{TrialActionStarted, TrialActionConverted, TrialActionExpired},
	},
	EventSubscriptionChange: {
		Category:    CategoryBusiness,
		ActionField: "action",
		Actions:     []string{SubscriptionActionUpgraded, SubscriptionActionDowngraded, SubscriptionActionCanceled},
	},

	EventDocTypeSelected:   {Category: CategoryUsage},
	EventTemplateSelected:  {Category: CategoryUsage},
	EventSettingsChanged:   {Category: CategoryUsage},
	EventFeedbackSubmitted: {Category: CategoryUsage},

	EventGenerationError: {Category: CategorySystem},
	EventRateLimitHit:    {Category: CategorySystem},
	EventWebhookReceived: {Category: CategorySystem},
}

// IsValid reports whether name is a declared event name.
func IsValid(name string) bool {
	_, ok := taxonomy[name]
	return ok
}

// CategoryOf returns the declared category for name.
func CategoryOf(name string) (Category, bool) {
	def, ok := taxonomy[name]
	return def.Category, ok
}

// ActionSpec returns the payload key and closed value set of an event's
// sub-action, if it declares one.
func ActionSpec(name string) (field string, actions []string, ok bool) {
	def, found := taxonomy[name]
	if !found || def.ActionField == "" {
		return "", nil, false
	}
	return def.ActionField, def.Actions, true
}

// DeclaredNames returns every statically declared event name, sorted.
func DeclaredNames() []string {
	names := make([]string, 0, len(taxonomy))
	for name := range taxonomy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
