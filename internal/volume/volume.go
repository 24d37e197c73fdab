// Package volume reconciles a shared filesystem's access-point identity
// with container mount requests.
//
// The access point fixes a root path and a POSIX (uid, gid) applied at
// first access; every mount must carry the same identity or storage-layer
// reads and writes fail with a permission error. The binder guarantees
// the match by construction: conflicts surface at plan time, never at
// runtime on first write.
package volume

import (
	"fmt"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/secwire"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// The shared filesystem speaks NFS; its boundary must admit its own
// members on this port before a mount is satisfiable.
const (
	NFSPort     = 2049
	nfsProtocol = "tcp"
)

// Binding is a resolved mount: the identity the mount transport will
// assume and the access-point root it enters through.
type Binding struct {
	Volume        string
	ContainerPath string
	RootPath      string
	ReadOnly      bool
	UID           int
	GID           int
}

// Binder resolves mount identities against volume access points and
// requests the filesystem-protocol boundary rules they require.
type Binder struct {
	topo   *topology.Topology
	wiring *secwire.Engine
}

// New returns a binder that records required boundary rules on wiring.
func New(t *topology.Topology, wiring *secwire.Engine) *Binder {
	return &Binder{topo: t, wiring: wiring}
}

// Bind resolves one container mount point for a service. A mount with no
// explicit identity inherits the access point's (uid, gid); a
// conflicting identity fails with stackplan.ErrIdentityMismatch. The
// self-referencing NFS rule is granted on the volume's boundary as part
// of binding.
func (b *Binder) Bind(serviceID string, m topology.MountPoint) (Binding, error) {
	node, ok := b.topo.Node(m.Volume)
	if !ok || node.Kind != topology.KindVolume {
		return Binding{}, &stackplan.NodeError{ID: m.Volume, Detail: "not a volume", Err: stackplan.ErrUnknownNode}
	}
	spec := node.Spec.(topology.VolumeSpec)
	ap := spec.AccessPoint

	uid, gid := ap.UID, ap.GID
	if m.UID != nil && *m.UID != ap.UID {
		return Binding{}, mismatch(serviceID, m.Volume, "uid", *m.UID, ap.UID)
	}
	if m.GID != nil && *m.GID != ap.GID {
		return Binding{}, mismatch(serviceID, m.Volume, "gid", *m.GID, ap.GID)
	}

	err := b.wiring.GrantSelf(spec.Boundary, nfsProtocol, NFSPort,
		fmt.Sprintf("nfs for volume %s", m.Volume))
	if err != nil {
		return Binding{}, err
	}

	return Binding{
		Volume:        m.Volume,
		ContainerPath: m.ContainerPath,
		RootPath:      ap.Path,
		ReadOnly:      m.ReadOnly,
		UID:           uid,
		GID:           gid,
	}, nil
}

func mismatch(serviceID, volumeID, field string, got, want int) error {
	return &stackplan.EdgeError{
		From:   serviceID,
		To:     volumeID,
		Detail: fmt.Sprintf("mount %s %d conflicts with access point %s %d", field, got, field, want),
		Err:    stackplan.ErrIdentityMismatch,
	}
}
