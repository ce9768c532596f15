package common

// AuthorizationHeader is the HTTP header used to carry the bearer token on
// outbound requests.
const AuthorizationHeader = "Authorization"

// DocumentType identifies which collaborative document family a fragment
// belongs to. The server exposes one sync path per type.
type DocumentType string

const (
	DocumentTypeFieldNotes      DocumentType = "fieldNotes"
	DocumentTypePropertyDetails DocumentType = "propertyDetails"
	DocumentTypeReport          DocumentType = "report"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeFieldNotes, DocumentTypePropertyDetails, DocumentTypeReport:
		return true
	}
	return false
}

// SyncPath returns the server path fragment deliveries for this document
// type are posted to, e.g. /api/fieldNotes/{id}/sync.
func (t DocumentType) SyncPath(documentID string) string {
	return "/api/" + string(t) + "/" + documentID + "/sync"
}
