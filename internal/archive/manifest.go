package archive

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ManifestName is the entry path of the jar manifest.
const ManifestName = "META-INF/MANIFEST.MF"

// WriteManifest writes the jar manifest. Its Stub-Build-Id is derived from
// the stubs written so far, so identical stub sets share an id. The id is
// returned, or uuid.Nil when a manifest was already written, as happens when
// a merged archive carried one.
func (a *Assembler) WriteManifest(createdBy string) (uuid.UUID, error) {
	id := uuid.NewSHA1(uuid.NameSpaceOID, a.stubs.Sum(nil))

	var sb strings.Builder
	sb.WriteString("Manifest-Version: 1.0\r\n")
	if createdBy != "" {
		fmt.Fprintf(&sb, "Created-By: %s\r\n", createdBy)
	}
	fmt.Fprintf(&sb, "Stub-Build-Id: %s\r\n", id)
	sb.WriteString("\r\n")

	ok, err := a.WriteEntry(ManifestName, strings.NewReader(sb.String()))
	if err != nil || !ok {
		return uuid.Nil, err
	}
	return id, nil
}
