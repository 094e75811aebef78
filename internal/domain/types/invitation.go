package types

// InvitationStatus es el estado de invitación de una membresía.
type InvitationStatus string

const (
	InvitationNotInvited InvitationStatus = "not_invited"
	InvitationPending    InvitationStatus = "pending"
	InvitationInvited    InvitationStatus = "invited"
	InvitationAccepted   InvitationStatus = "accepted"
	InvitationDeclined   InvitationStatus = "declined"
)

// GrantsPatientAccess retorna true solo para "accepted".
// Una identidad patient-only con cualquier otro estado NO es miembro
// efectivo del tenant, aunque exista la fila de membresía.
func (s InvitationStatus) GrantsPatientAccess() bool {
	return s == InvitationAccepted
}
