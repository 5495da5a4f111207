package plan

// Features of the default catalog.
const (
	FeatureBasicAITools      Feature = "BASIC_AI_TOOLS"
	FeaturePromptTemplates   Feature = "PROMPT_TEMPLATES"
	FeatureBasicWorkflows    Feature = "BASIC_WORKFLOWS"
	FeaturePersonalBookmarks Feature = "PERSONAL_BOOKMARKS"
	FeatureUpgrade           Feature = "FEATURE_UPGRADE"
	FeatureBilling           Feature = "FEATURE_BILLING"
	FeatureExperimentalUI    Feature = "EXPERIMENTAL_UI"

	FeatureAllAITools        Feature = "ALL_AI_TOOLS"
	FeatureUnlimitedPrompts  Feature = "UNLIMITED_PROMPTS"
	FeatureAdvancedWorkflows Feature = "ADVANCED_WORKFLOWS"
	FeatureAPIAccess         Feature = "API_ACCESS"
	FeatureTeamBasic         Feature = "TEAM_BASIC"
	FeaturePrioritySupport   Feature = "PRIORITY_SUPPORT"
	FeatureAdvancedAnalytics Feature = "ADVANCED_ANALYTICS"
	FeatureBeta              Feature = "BETA_FEATURES"

	FeatureTeamAdvanced     Feature = "TEAM_ADVANCED"
	FeatureAuditLogs        Feature = "AUDIT_LOGS"
	FeatureSSO              Feature = "SSO_INTEGRATION"
	FeatureRoleBasedAccess  Feature = "ROLE_BASED_ACCESS"
	FeatureDedicatedSupport Feature = "DEDICATED_SUPPORT"
)

// Actions of the default catalog.
const (
	ActionCompilePrompt Action = "compile_prompt"
	ActionSaveResource  Action = "save_resource"
	ActionAPICall       Action = "api_call"
	ActionWorkflowRun   Action = "workflow_run"
	ActionExportData    Action = "export_data"
)

// DefaultDefinition returns the built-in product catalog.
func DefaultDefinition() Definition {
	return Definition{
		Features: []FeatureDefinition{
			{Key: FeatureBasicAITools, MinTier: Free, Title: "Basic AI tools", Description: "Prompt compiler and core AI tools"},
			{Key: FeaturePromptTemplates, MinTier: Free, Title: "Prompt templates", Description: "Start from curated prompt templates"},
			{Key: FeatureBasicWorkflows, MinTier: Free, Title: "Basic workflows", Description: "Build simple multi-step workflows"},
			{Key: FeaturePersonalBookmarks, MinTier: Free, Title: "Personal bookmarks", Description: "Bookmark prompts and tools"},
			{Key: FeatureUpgrade, MinTier: Free, Title: "Upgrade", Description: "Compare plans and upgrade"},
			{Key: FeatureBilling, MinTier: Free, Title: "Billing", Description: "Manage payment and invoices"},
			{Key: FeatureExperimentalUI, MinTier: Free, Title: "Experimental UI", Description: "Try interface experiments"},

			{Key: FeatureAllAITools, MinTier: Pro, Title: "All AI tools", Description: "Unlock every AI tool in the catalog", UpgradeURL: "/pricing?feature=all_ai_tools"},
			{Key: FeatureUnlimitedPrompts, MinTier: Pro, Title: "Unlimited prompts", Description: "Compile and save prompts without monthly limits", UpgradeURL: "/pricing?feature=unlimited_prompts"},
			{Key: FeatureAdvancedWorkflows, MinTier: Pro, Title: "Advanced workflows", Description: "Conditional steps, branching and scheduled runs", UpgradeURL: "/pricing?feature=advanced_workflows"},
			{Key: FeatureAPIAccess, MinTier: Pro, Title: "API access", Description: "Call the platform programmatically", UpgradeURL: "/pricing?feature=api_access"},
			{Key: FeatureTeamBasic, MinTier: Pro, Title: "Team collaboration", Description: "Share workspaces with teammates", UpgradeURL: "/pricing?feature=team_basic"},
			{Key: FeaturePrioritySupport, MinTier: Pro, Title: "Priority support", Description: "Faster answers from the support team", UpgradeURL: "/pricing?feature=priority_support"},
			{Key: FeatureAdvancedAnalytics, MinTier: Pro, Title: "Advanced analytics", Description: "Detailed usage and performance reports", UpgradeURL: "/pricing?feature=analytics"},
			{Key: FeatureBeta, MinTier: Pro, Title: "Beta features", Description: "Early access to new features", UpgradeURL: "/pricing?feature=beta"},

			{Key: FeatureTeamAdvanced, MinTier: Team, Title: "Advanced team management", Description: "Team-wide settings and member administration", UpgradeURL: "/pricing?feature=team_advanced"},
			{Key: FeatureAuditLogs, MinTier: Team, Title: "Audit logs", Description: "Track every change made in the team", UpgradeURL: "/pricing?feature=audit_logs"},
			{Key: FeatureSSO, MinTier: Team, Title: "SSO integration", Description: "Sign in through your identity provider", UpgradeURL: "/pricing?feature=sso"},
			{Key: FeatureRoleBasedAccess, MinTier: Team, Title: "Role-based access", Description: "Fine-grained roles for team members", UpgradeURL: "/pricing?feature=rbac"},
			{Key: FeatureDedicatedSupport, MinTier: Team, Title: "Dedicated support", Description: "A named support contact for the team", UpgradeURL: "/pricing?feature=dedicated_support"},
		},
		Actions: []ActionDefinition{
			{
				Key:     ActionCompilePrompt,
				Feature: FeatureBasicAITools,
				Period:  Month,
				Limits:  map[Tier]int64{Free: 20, Pro: Unlimited, Team: Unlimited},
			},
			{
				Key:     ActionSaveResource,
				Feature: FeatureBasicAITools,
				Period:  Month,
				Limits:  map[Tier]int64{Free: 10, Pro: Unlimited, Team: Unlimited},
			},
			{
				Key:     ActionAPICall,
				Feature: FeatureAPIAccess,
				Period:  Day,
				Limits:  map[Tier]int64{Free: 50, Pro: 1000, Team: 5000},
			},
			{
				Key:     ActionWorkflowRun,
				Feature: FeatureAdvancedWorkflows,
				Period:  Month,
				Limits:  map[Tier]int64{Free: 0, Pro: 500, Team: Unlimited},
			},
			{
				Key:     ActionExportData,
				Feature: FeatureAPIAccess,
				Period:  Month,
				Limits:  map[Tier]int64{Free: 0, Pro: 100, Team: Unlimited},
			},
		},
	}
}
