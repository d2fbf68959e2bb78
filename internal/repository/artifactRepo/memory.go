package artifactRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"artifact-review/internal/model/artifact"
)

// Memory is an in-process Store. Records live in flat maps keyed by id with
// child indexes keyed by parent id; a single mutex serializes all writers.
type Memory struct {
	mu sync.RWMutex

	artifacts map[uuid.UUID]*artifact.Artifact
	versions  map[uuid.UUID]*artifact.Version
	files     map[uuid.UUID]*artifact.File
	grants    map[uuid.UUID]*artifact.ReviewerGrant

	versionSeq       map[uuid.UUID]int
	versionsByParent map[uuid.UUID][]uuid.UUID
	filesByParent    map[uuid.UUID][]uuid.UUID
	grantsByParent   map[uuid.UUID][]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{
		artifacts:        make(map[uuid.UUID]*artifact.Artifact),
		versions:         make(map[uuid.UUID]*artifact.Version),
		files:            make(map[uuid.UUID]*artifact.File),
		grants:           make(map[uuid.UUID]*artifact.ReviewerGrant),
		versionSeq:       make(map[uuid.UUID]int),
		versionsByParent: make(map[uuid.UUID][]uuid.UUID),
		filesByParent:    make(map[uuid.UUID][]uuid.UUID),
		grantsByParent:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func copyArtifact(a *artifact.Artifact) *artifact.Artifact { c := *a; return &c }
func copyVersion(v *artifact.Version) *artifact.Version    { c := *v; return &c }
func copyFile(f *artifact.File) *artifact.File             { c := *f; return &c }
func copyGrant(g *artifact.ReviewerGrant) *artifact.ReviewerGrant {
	c := *g
	return &c
}

func (m *Memory) CreateArtifact(_ context.Context, a *artifact.Artifact, v *artifact.Version, f *artifact.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.artifacts {
		if existing.ShareToken == a.ShareToken {
			return ErrDuplicate
		}
	}
	m.artifacts[a.ID] = copyArtifact(a)
	v.ArtifactID = a.ID
	m.insertVersionLocked(v, f)
	return nil
}

func (m *Memory) insertVersionLocked(v *artifact.Version, f *artifact.File) {
	m.versionSeq[v.ArtifactID]++
	v.Number = m.versionSeq[v.ArtifactID]
	m.versions[v.ID] = copyVersion(v)
	m.versionsByParent[v.ArtifactID] = append(m.versionsByParent[v.ArtifactID], v.ID)
	if f != nil {
		f.VersionID = v.ID
		m.files[f.ID] = copyFile(f)
		m.filesByParent[v.ID] = append(m.filesByParent[v.ID], f.ID)
	}
}

func (m *Memory) GetArtifact(_ context.Context, id uuid.UUID) (*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, nil
	}
	return copyArtifact(a), nil
}

func (m *Memory) GetArtifactByShareToken(_ context.Context, token string) (*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.artifacts {
		if a.ShareToken == token {
			return copyArtifact(a), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListArtifactsByOwner(_ context.Context, owner uuid.UUID) ([]*artifact.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.Artifact
	for _, a := range m.artifacts {
		if a.CreatedBy == owner && !a.IsDeleted {
			out = append(out, copyArtifact(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) UpdateArtifactDetails(_ context.Context, id uuid.UUID, name string, description *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok || a.IsDeleted {
		return ErrGone
	}
	a.Name = name
	a.Description = description
	a.UpdatedAt = at
	return nil
}

// SoftDeleteArtifact walks artifact -> versions -> files, stamping every
// record that is not already deleted.
func (m *Memory) SoftDeleteArtifact(_ context.Context, id, by uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok || a.IsDeleted {
		return ErrGone
	}
	a.MarkDeleted(at, by)
	for _, vid := range m.versionsByParent[id] {
		v := m.versions[vid]
		if v.IsDeleted {
			continue
		}
		v.MarkDeleted(at, by)
		m.deleteFilesLocked(vid, by, at)
	}
	return nil
}

func (m *Memory) deleteFilesLocked(versionID, by uuid.UUID, at time.Time) int {
	n := 0
	for _, fid := range m.filesByParent[versionID] {
		f := m.files[fid]
		if f.IsDeleted {
			continue
		}
		f.MarkDeleted(at, by)
		n++
	}
	return n
}

func (m *Memory) AddVersion(_ context.Context, v *artifact.Version, f *artifact.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[v.ArtifactID]
	if !ok || a.IsDeleted {
		return ErrGone
	}
	m.insertVersionLocked(v, f)
	a.UpdatedAt = v.CreatedAt
	return nil
}

func (m *Memory) GetVersion(_ context.Context, id uuid.UUID) (*artifact.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, nil
	}
	return copyVersion(v), nil
}

func (m *Memory) GetVersionByNumber(_ context.Context, artifactID uuid.UUID, number int) (*artifact.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, vid := range m.versionsByParent[artifactID] {
		if v := m.versions[vid]; v.Number == number {
			return copyVersion(v), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListActiveVersions(_ context.Context, artifactID uuid.UUID) ([]*artifact.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.Version
	for _, vid := range m.versionsByParent[artifactID] {
		if v := m.versions[vid]; !v.IsDeleted {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (m *Memory) ListVersionsByStatus(_ context.Context, status artifact.Status, before time.Time) ([]*artifact.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.Version
	for _, v := range m.versions {
		if !v.IsDeleted && v.Status.Effective() == status && v.UpdatedAt.Before(before) {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) activeVersionLocked(id uuid.UUID) (*artifact.Version, error) {
	v, ok := m.versions[id]
	if !ok || v.IsDeleted {
		return nil, ErrGone
	}
	return v, nil
}

func (m *Memory) MarkVersionProcessing(_ context.Context, id uuid.UUID, uploadHandle string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.activeVersionLocked(id)
	if err != nil {
		return false, err
	}
	if v.Status != artifact.StatusUploading {
		return false, nil
	}
	v.Status = artifact.StatusProcessing
	v.UploadHandle = uploadHandle
	v.UpdatedAt = at
	return true, nil
}

func (m *Memory) MarkVersionReady(_ context.Context, id uuid.UUID, entryPoint string, size int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.activeVersionLocked(id)
	if err != nil {
		return err
	}
	v.Status = artifact.StatusReady
	v.EntryPoint = entryPoint
	v.Size = size
	v.ErrorMessage = nil
	v.UpdatedAt = at
	return nil
}

func (m *Memory) MarkVersionError(_ context.Context, id uuid.UUID, from artifact.Status, message string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return false, ErrGone
	}
	if v.Status.Effective() != from {
		return false, nil
	}
	v.Status = artifact.StatusError
	v.ErrorMessage = &message
	v.UpdatedAt = at
	return true, nil
}

func (m *Memory) ListUnreleasedFailures(_ context.Context, before time.Time) ([]*artifact.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.Version
	for _, v := range m.versions {
		if !v.IsDeleted && v.Status == artifact.StatusError && v.ReleasedAt == nil && v.UpdatedAt.Before(before) {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) MarkVersionReleased(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return ErrGone
	}
	v.ReleasedAt = &at
	v.UploadHandle = ""
	return nil
}

func (m *Memory) UpdateVersionName(_ context.Context, id uuid.UUID, name *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.activeVersionLocked(id)
	if err != nil {
		return err
	}
	v.Name = name
	v.UpdatedAt = at
	return nil
}

func (m *Memory) SoftDeleteVersion(_ context.Context, id, by uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.activeVersionLocked(id)
	if err != nil {
		return err
	}
	active := 0
	for _, vid := range m.versionsByParent[v.ArtifactID] {
		if !m.versions[vid].IsDeleted {
			active++
		}
	}
	if active <= 1 {
		return ErrLastVersion
	}
	v.MarkDeleted(at, by)
	m.deleteFilesLocked(id, by, at)
	return nil
}

func (m *Memory) CreateFile(_ context.Context, f *artifact.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.activeVersionLocked(f.VersionID); err != nil {
		return err
	}
	for _, fid := range m.filesByParent[f.VersionID] {
		if existing := m.files[fid]; !existing.IsDeleted && existing.Path == f.Path {
			return ErrDuplicate
		}
	}
	m.files[f.ID] = copyFile(f)
	m.filesByParent[f.VersionID] = append(m.filesByParent[f.VersionID], f.ID)
	return nil
}

func (m *Memory) GetFileByPath(_ context.Context, versionID uuid.UUID, path string) (*artifact.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fid := range m.filesByParent[versionID] {
		if f := m.files[fid]; !f.IsDeleted && f.Path == path {
			return copyFile(f), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListFiles(_ context.Context, versionID uuid.UUID) ([]*artifact.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.File
	for _, fid := range m.filesByParent[versionID] {
		if f := m.files[fid]; !f.IsDeleted {
			out = append(out, copyFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) SoftDeleteFiles(_ context.Context, versionID, by uuid.UUID, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteFilesLocked(versionID, by, at), nil
}

func (m *Memory) CountFilesByBlob(_ context.Context, handle string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, f := range m.files {
		if !f.IsDeleted && f.BlobHandle == handle {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateGrant(_ context.Context, g *artifact.ReviewerGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[g.ArtifactID]
	if !ok || a.IsDeleted {
		return ErrGone
	}
	for _, gid := range m.grantsByParent[g.ArtifactID] {
		if existing := m.grants[gid]; !existing.IsDeleted && existing.Email == g.Email {
			return ErrDuplicate
		}
	}
	m.grants[g.ID] = copyGrant(g)
	m.grantsByParent[g.ArtifactID] = append(m.grantsByParent[g.ArtifactID], g.ID)
	return nil
}

func (m *Memory) GetGrant(_ context.Context, id uuid.UUID) (*artifact.ReviewerGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, nil
	}
	return copyGrant(g), nil
}

func (m *Memory) FindActiveGrant(_ context.Context, artifactID uuid.UUID, email string) (*artifact.ReviewerGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, gid := range m.grantsByParent[artifactID] {
		if g := m.grants[gid]; !g.IsDeleted && g.Email == email {
			return copyGrant(g), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListActiveGrants(_ context.Context, artifactID uuid.UUID) ([]*artifact.ReviewerGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*artifact.ReviewerGrant
	for _, gid := range m.grantsByParent[artifactID] {
		if g := m.grants[gid]; !g.IsDeleted {
			out = append(out, copyGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out, nil
}

func (m *Memory) HasAcceptedGrant(_ context.Context, artifactID, userID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, gid := range m.grantsByParent[artifactID] {
		g := m.grants[gid]
		if !g.IsDeleted && g.Status == artifact.GrantAccepted && g.UserID != nil && *g.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SoftDeleteGrant(_ context.Context, id, by uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok || g.IsDeleted {
		return ErrGone
	}
	g.MarkDeleted(at, by)
	return nil
}

func (m *Memory) LinkPendingGrants(_ context.Context, email string, userID uuid.UUID, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.grants {
		if g.IsDeleted || g.Status != artifact.GrantPending || g.Email != email {
			continue
		}
		uid := userID
		g.UserID = &uid
		g.Status = artifact.GrantAccepted
		n++
	}
	return n, nil
}
