// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

// Permission is a named capability such as "puede_crear_causa".
type Permission string

const (
	PermViewPersons  Permission = "puede_ver_personas"
	PermCreatePerson Permission = "puede_crear_persona"
	PermEditPerson   Permission = "puede_editar_persona"
	PermDeletePerson Permission = "puede_eliminar_persona"

	PermViewCases    Permission = "puede_ver_causas"
	PermCreateCase   Permission = "puede_crear_causa"
	PermEditCase     Permission = "puede_editar_causa"
	PermDeleteCase   Permission = "puede_eliminar_causa"
	PermAssignCase   Permission = "puede_asignar_causa"
	PermReassignCase Permission = "puede_reasignar_causa"

	PermViewDocuments             Permission = "puede_ver_documentos"
	PermUploadDocument            Permission = "puede_subir_documento"
	PermEditDocument              Permission = "puede_editar_documento"
	PermDeleteDocument            Permission = "puede_eliminar_documento"
	PermViewConfidentialDocuments Permission = "puede_ver_documentos_confidenciales"
	PermUploadPortalDocument      Permission = "puede_subir_documento_portal"

	PermViewHearings  Permission = "puede_ver_audiencias"
	PermCreateHearing Permission = "puede_crear_audiencia"
	PermEditHearing   Permission = "puede_editar_audiencia"
	PermDeleteHearing Permission = "puede_eliminar_audiencia"

	PermViewReports       Permission = "puede_ver_reportes"
	PermExportReports     Permission = "puede_exportar_reportes"
	PermViewGlobalReports Permission = "puede_ver_reportes_globales"

	PermViewAudit   Permission = "puede_ver_auditoria"
	PermExportAudit Permission = "puede_exportar_auditoria"

	PermManageUsers     Permission = "puede_gestionar_usuarios"
	PermManageCatalogs  Permission = "puede_gestionar_catalogos"
	PermViewAdminPanel  Permission = "puede_ver_panel_admin"
	PermConfigureSystem Permission = "puede_configurar_sistema"

	PermViewConsents   Permission = "puede_ver_consentimientos"
	PermManageConsents Permission = "puede_gestionar_consentimientos"

	// Portal permissions are only granted to external parties.
	PermAccessPortal        Permission = "puede_acceder_portal"
	PermViewSharedDocuments Permission = "puede_ver_documentos_compartidos"
	PermViewReminders       Permission = "puede_ver_recordatorios"
)

// AllPermissions lists every permission the matrix knows, grouped by area.
var AllPermissions = []Permission{
	PermViewPersons, PermCreatePerson, PermEditPerson, PermDeletePerson,
	PermViewCases, PermCreateCase, PermEditCase, PermDeleteCase, PermAssignCase, PermReassignCase,
	PermViewDocuments, PermUploadDocument, PermEditDocument, PermDeleteDocument,
	PermViewConfidentialDocuments, PermUploadPortalDocument,
	PermViewHearings, PermCreateHearing, PermEditHearing, PermDeleteHearing,
	PermViewReports, PermExportReports, PermViewGlobalReports,
	PermViewAudit, PermExportAudit,
	PermManageUsers, PermManageCatalogs, PermViewAdminPanel, PermConfigureSystem,
	PermViewConsents, PermManageConsents,
	PermAccessPortal, PermViewSharedDocuments, PermViewReminders,
}

var knownPermissions = func() map[Permission]bool {
	m := make(map[Permission]bool, len(AllPermissions))
	for _, p := range AllPermissions {
		m[p] = true
	}
	return m
}()

// Known reports whether p is a permission name the matrix can grant.
func Known(p Permission) bool { return knownPermissions[p] }

func (p Permission) String() string { return string(p) }
