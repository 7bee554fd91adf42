package rbac

const (
	PermSheetView         = "sheet:view"
	PermSheetManage       = "sheet:manage"
	PermAssessmentPreview = "assessment:preview"
	PermAssessmentSubmit  = "assessment:submit"
	PermAssessmentView    = "assessment:view"
	PermAssessmentExport  = "assessment:export"
)

// RolePermissions is the default policy. Assessors only hold sheet tokens;
// administration needs the admin role.
var RolePermissions = map[string][]string{
	"assessor": {
		PermSheetView,
		PermAssessmentPreview,
		PermAssessmentSubmit,
	},
	"admin": {
		"*",
	},
}
