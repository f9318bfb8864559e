// Package registry implements the skill registry (spec.md §4.2, Skill
// Registry / C2): a content-addressable, schema-validated store of skill
// artifacts keyed by (skill_id, version).
//
// Content addressing is grounded on the teacher's cxdb package, whose
// Artifact type carries a "content_hash" field computed over an event's
// attached bytes; here every registered code blob is hashed with blake3
// the same way, and the digest is stamped on the skill and used in its blob
// store key. Re-registration under an existing (skill_id, version) is
// rejected by a metadata lookup whatever the blob's content (spec.md §8,
// invariant 6).
package registry

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/skillproto/internal/apierr"
	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/schema"
)

// RegisterRequest is the wire shape of a POST /skill/register body
// (spec.md §6.1), prior to base64-decoding Code.
type RegisterRequest struct {
	SkillID        string
	SkillName      string
	Description    string
	Version        string
	Language       string
	CodeBase64     string
	TimeoutSeconds int
	Dependencies   string
	InputSchema    map[string]any
	OutputSchema   map[string]any
	Author         string
	License        string
	Category       string
}

// Registry is the skill registry (C2).
type Registry struct {
	meta    MetadataStore
	blobs   BlobStore
	schemas *schema.Cache
	logger  *log.Logger
}

func New(meta MetadataStore, blobs BlobStore, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{meta: meta, blobs: blobs, schemas: schema.NewCache(), logger: logger}
}

// Register validates and persists a new skill version (spec.md §4.2).
func (r *Registry) Register(req RegisterRequest) (*model.Skill, error) {
	if err := requireNonEmpty(req.SkillID, req.SkillName, req.Version, req.Language); err != nil {
		return nil, apierr.RegValidationFailed("%s", err.Error())
	}
	if !model.Language(req.Language).Valid() {
		return nil, apierr.RegValidationFailed("unsupported language %q", req.Language)
	}
	if _, err := model.ParseSemVer(req.Version); err != nil {
		return nil, apierr.RegValidationFailed("%s", err.Error())
	}
	if req.TimeoutSeconds < 1 || req.TimeoutSeconds > 600 {
		return nil, apierr.RegValidationFailed("timeout_seconds must be in [1, 600], got %d", req.TimeoutSeconds)
	}

	code, err := base64.StdEncoding.DecodeString(req.CodeBase64)
	if err != nil || len(code) == 0 {
		return nil, apierr.InvalidCode("code does not decode to a non-empty byte string")
	}

	if err := schema.ValidateDocument(req.InputSchema); err != nil {
		return nil, apierr.RegValidationFailed("input_schema is not a valid JSON-Schema document: %v", err)
	}
	if err := schema.ValidateDocument(req.OutputSchema); err != nil {
		return nil, apierr.RegValidationFailed("output_schema is not a valid JSON-Schema document: %v", err)
	}

	if existing, ok, _ := r.meta.GetSkill(req.SkillID, req.Version); ok && existing != nil {
		return nil, apierr.DuplicateSkill(req.SkillID, req.Version)
	}

	sum := blake3.Sum256(code)
	contentHash := hex.EncodeToString(sum[:])
	blobKey := blobKey(req.SkillID, req.Version, contentHash)
	if err := r.blobs.Put(blobKey, code); err != nil {
		return nil, apierr.RegInternal("persist code blob: %v", err)
	}

	now := time.Now().UTC()
	skill := &model.Skill{
		SkillID:        req.SkillID,
		SkillName:      req.SkillName,
		Description:    req.Description,
		Version:        req.Version,
		Language:       model.Language(req.Language),
		Code:           code,
		TimeoutSeconds: req.TimeoutSeconds,
		Dependencies:   req.Dependencies,
		InputSchema:    req.InputSchema,
		OutputSchema:   req.OutputSchema,
		Author:         req.Author,
		License:        req.License,
		Category:       req.Category,
		ContentHash:    contentHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.meta.PutSkill(skill); err != nil {
		return nil, apierr.DuplicateSkill(req.SkillID, req.Version)
	}
	return skill, nil
}

// Get returns the latest version by semantic-version ordering if version
// is empty, else the exact (skill_id, version) pair (spec.md §4.2).
func (r *Registry) Get(skillID, version string) (*model.Skill, error) {
	sk, ok, err := r.meta.GetSkill(skillID, version)
	if err != nil {
		return nil, apierr.RegInternal("lookup skill %s: %v", skillID, err)
	}
	if !ok {
		return nil, apierr.SkillNotFound(skillID)
	}
	code, ok, err := r.blobs.Get(blobKey(sk.SkillID, sk.Version, sk.ContentHash))
	if err != nil {
		return nil, apierr.RegInternal("load code blob: %v", err)
	}
	if ok {
		sk.Code = code
	}
	return sk, nil
}

// Delete removes all versions of a skill. Deletion is soft-idempotent:
// repeated deletes return success without doing further work (spec.md
// §4.2, §3).
func (r *Registry) Delete(skillID string) error {
	if err := r.meta.DeleteSkill(skillID); err != nil {
		return apierr.RegInternal("delete skill %s: %v", skillID, err)
	}
	return nil
}

// Filter selects skills for List/discovery.
type Filter struct {
	Category string
	Language string
}

// List returns a projection-only page of skills (spec.md §4.2). Pagination
// and free-text search live in the discovery index (C6); this is the
// registry's flat enumeration (latest version per skill, ordered by
// skill_id) that the index builds on top of.
func (r *Registry) List(f Filter) ([]*model.Skill, error) {
	all, err := r.meta.ListSkills()
	if err != nil {
		return nil, apierr.RegInternal("list skills: %v", err)
	}
	out := make([]*model.Skill, 0, len(all))
	for _, sk := range all {
		if f.Category != "" && !strings.EqualFold(sk.Category, f.Category) {
			continue
		}
		if f.Language != "" && !strings.EqualFold(string(sk.Language), f.Language) {
			continue
		}
		out = append(out, sk)
	}
	return out, nil
}

// Stats returns usage statistics for a skill.
func (r *Registry) Stats(skillID string) model.UsageStats {
	st, _ := r.meta.Stats(skillID)
	return st
}

// RecordInvocation updates usage statistics after a terminal invocation
// (spec.md §3, UsageStats: "Updated after each terminal invocation (not
// during)").
func (r *Registry) RecordInvocation(skillID string, success bool) {
	if err := r.meta.IncrementStats(skillID, success); err != nil {
		r.logger.Printf("[registry] increment stats for %s: %v", skillID, err)
	}
}

// SchemaFor compiles (or retrieves from cache) the input/output schema for
// a skill version.
func (r *Registry) SchemaFor(skill *model.Skill, output bool) (*schema.Compiled, error) {
	doc := skill.InputSchema
	side := "input"
	if output {
		doc = skill.OutputSchema
		side = "output"
	}
	key := skill.SkillID + "@" + skill.Version + ":" + side
	return r.schemas.Get(key, doc)
}

func blobKey(skillID, version, contentHash string) string {
	return fmt.Sprintf("skills/%s/%s/%s", skillID, version, contentHash)
}

func requireNonEmpty(fields ...string) error {
	names := []string{"skill_id", "skill_name", "version", "language"}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%s is required", names[i])
		}
	}
	return nil
}
