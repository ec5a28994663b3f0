package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/ratelimit"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/session"
	"family-calendar-backend/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MemberInput is a person to invite into a family
type MemberInput struct {
	Email string      `json:"email" validate:"required,email"`
	Name  string      `json:"name" validate:"max=100"`
	Role  models.Role `json:"role" validate:"omitempty,oneof=admin member child"`
}

// CreateFamilyRequest represents a request to create a family
type CreateFamilyRequest struct {
	Name    string        `json:"name"`
	Color   string        `json:"color" validate:"max=32"`
	Members []MemberInput `json:"members"`
}

// FamilyResult is a created or recovered family plus the invitations sent
type FamilyResult struct {
	Family      *models.Family      `json:"data"`
	Invitations []models.Invitation `json:"invitations,omitempty"`
	// Existing is set when the caller already had a family with this name
	Existing bool `json:"existing"`
	// Recovered is set when creation reported a conflict but the family was found afterwards
	Recovered bool     `json:"recovered"`
	Warnings  Warnings `json:"warnings,omitempty"`
}

// FamilyService handles family-related business logic
type FamilyService struct {
	families     FamilyStore
	members      MemberStore
	invitations  InvitationStore
	functions    FunctionCaller
	recovery     RetryPolicy
	defaultColor string
	resends      *ratelimit.KeyedRateLimiter
	validator    *validation.Validator
}

// NewFamilyService creates a new family service
func NewFamilyService(
	families FamilyStore,
	members MemberStore,
	invitations InvitationStore,
	functions FunctionCaller,
	recovery RetryPolicy,
	defaultColor string,
	resends *ratelimit.KeyedRateLimiter,
) *FamilyService {
	return &FamilyService{
		families:     families,
		members:      members,
		invitations:  invitations,
		functions:    functions,
		recovery:     recovery,
		defaultColor: defaultColor,
		resends:      resends,
		validator:    validation.New(),
	}
}

// CreateFamily creates a family owned by the caller and invites the
// requested members. Creating a family whose name the caller already uses
// returns that family instead. Invitation failures come back as warnings.
func (s *FamilyService) CreateFamily(ctx context.Context, req CreateFamilyRequest) (result *FamilyResult, err error) {
	defer guard("create family", &err)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.ValidationWithDetails("name is required", map[string]string{"name": "is required"})
	}
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in to create a family")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	invites := normalizeInvitees(req.Members, sess.Email)
	if err := s.validateInvitees(invites); err != nil {
		return nil, err
	}
	color := strings.TrimSpace(req.Color)
	if color == "" {
		color = s.defaultColor
	}

	result = &FamilyResult{}

	existing, err := s.families.FindByNameAndCreator(ctx, name, sess.UserID)
	switch {
	case err == nil:
		log.Info().Str("user_id", sess.UserID).Str("family_id", existing.ID).Msg("Family already exists, reusing it")
		result.Family = existing
		result.Existing = true
	case !errors.Is(err, repository.ErrNotFound):
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Failed to check for existing family")
	}

	if result.Family == nil {
		family, recovered, err := s.createFamily(ctx, name, color, sess.UserID)
		if err != nil {
			return nil, err
		}
		result.Family = family
		result.Recovered = recovered
		log.Info().
			Str("user_id", sess.UserID).
			Str("family_id", family.ID).
			Bool("recovered", recovered).
			Msg("Family created")
	}

	if len(invites) > 0 {
		stored, err := s.invitations.UpsertMany(ctx, buildInvitations(result.Family.ID, sess.UserID, invites))
		if err != nil {
			log.Warn().Err(err).Str("family_id", result.Family.ID).Msg("Failed to invite members")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Family created, but inviting %d member(s) failed", len(invites)))
		}
		result.Invitations = stored
	}

	return result, nil
}

// createFamily calls the privileged creation function. A unique violation is
// treated as a possible race: the family is polled for and, if found, the
// creation counts as a success.
func (s *FamilyService) createFamily(ctx context.Context, name, color, userID string) (*models.Family, bool, error) {
	family, err := s.functions.CreateFamilySafely(ctx, name, color, userID)
	if err == nil {
		if family == nil {
			return nil, false, apperrors.Persistence("could not create family: no row returned", nil)
		}
		return family, false, nil
	}
	if !errors.Is(err, repository.ErrUniqueViolation) {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create family")
		return nil, false, apperrors.Persistence("could not create family", err)
	}

	log.Warn().Err(err).Str("user_id", userID).Msg("Family creation conflicted, looking for the created family")
	recovered, rerr := retry(ctx, s.recovery, func() (*models.Family, error) {
		return s.families.FindByNameAndCreator(ctx, name, userID)
	})
	if rerr != nil {
		log.Error().Err(rerr).Str("user_id", userID).Msg("Family not found after conflict")
		return nil, false, apperrors.Persistence("could not create family", err)
	}
	return recovered, true, nil
}

// InviteMembers invites people into a family the caller administers
func (s *FamilyService) InviteMembers(ctx context.Context, familyID string, members []MemberInput) (invitations []models.Invitation, err error) {
	defer guard("invite members", &err)

	sess, err := s.requireAdmin(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, apperrors.ValidationWithDetails("members is required", map[string]string{"members": "is required"})
	}

	invites := normalizeInvitees(members, sess.Email)
	if err := s.validateInvitees(invites); err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return []models.Invitation{}, nil
	}
	stored, err := s.invitations.UpsertMany(ctx, buildInvitations(familyID, sess.UserID, invites))
	if err != nil {
		log.Error().Err(err).Str("family_id", familyID).Msg("Failed to invite members")
		return nil, apperrors.Persistence("could not send invitations", err)
	}

	log.Info().Str("user_id", sess.UserID).Str("family_id", familyID).Int("count", len(stored)).Msg("Members invited")
	return stored, nil
}

// ResendInvitation bumps the last_invited timestamp of a pending invitation
func (s *FamilyService) ResendInvitation(ctx context.Context, familyID, email string) (invitation *models.Invitation, err error) {
	defer guard("resend invitation", &err)

	sess, err := s.requireAdmin(ctx, familyID)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.ValidationWithDetails("email is required", map[string]string{"email": "is required"})
	}
	if s.resends != nil && !s.resends.Allow(familyID+":"+email) {
		return nil, apperrors.RateLimited("this invitation was resent recently, try again later")
	}

	inv, err := s.invitations.TouchLastInvited(ctx, familyID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("no pending invitation for this email")
		}
		return nil, apperrors.Persistence("could not resend invitation", err)
	}

	log.Info().Str("user_id", sess.UserID).Str("family_id", familyID).Msg("Invitation resent")
	return inv, nil
}

// ListFamilies returns the families the caller belongs to, using the
// server-side function when available and a direct join otherwise.
func (s *FamilyService) ListFamilies(ctx context.Context) (families []models.Family, err error) {
	defer guard("list families", &err)

	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}

	families, err = s.functions.UserFamilies(ctx, sess.UserID)
	if err == nil {
		return nonNil(families), nil
	}
	if !errors.Is(err, repository.ErrFunctionUnavailable) {
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("User families function failed, querying directly")
	}

	families, err = s.families.ListByMember(ctx, sess.UserID)
	if err != nil {
		return nil, apperrors.Persistence("could not load families", err)
	}
	return nonNil(families), nil
}

// ListMembers returns the members of each requested family, looking the
// families up in parallel. The caller must belong to every family.
func (s *FamilyService) ListMembers(ctx context.Context, familyIDs []string) (members map[string][]models.FamilyMember, err error) {
	defer guard("list members", &err)

	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}
	for _, id := range familyIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, apperrors.Validation("invalid family id: " + id)
		}
	}

	lists := make([][]models.FamilyMember, len(familyIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, familyID := range familyIDs {
		g.Go(func() error {
			list, err := s.members.ListByFamily(gctx, familyID)
			if err != nil {
				return apperrors.Persistence("could not load family members", err)
			}
			if !containsUser(list, sess.UserID) {
				return apperrors.Authorization("you are not a member of this family")
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	members = make(map[string][]models.FamilyMember, len(familyIDs))
	for i, familyID := range familyIDs {
		members[familyID] = lists[i]
	}
	return members, nil
}

// requireAdmin verifies the caller administers the family
func (s *FamilyService) requireAdmin(ctx context.Context, familyID string) (*session.Session, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}
	if _, err := uuid.Parse(familyID); err != nil {
		return nil, apperrors.NotFound("family not found")
	}
	membership, err := s.members.GetMembership(ctx, familyID, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Authorization("you are not a member of this family")
		}
		return nil, apperrors.Persistence("could not verify family membership", err)
	}
	if membership.Role != models.RoleAdmin {
		return nil, apperrors.Authorization("only family admins can invite members")
	}
	return sess, nil
}

// normalizeInvitees lower-cases and trims emails, drops the caller's own
// address and blank entries, and keeps the first occurrence of each email.
func normalizeInvitees(members []MemberInput, selfEmail string) []MemberInput {
	self := normalizeEmail(selfEmail)
	seen := make(map[string]struct{}, len(members))
	out := make([]MemberInput, 0, len(members))
	for _, m := range members {
		email := normalizeEmail(m.Email)
		if email == "" || email == self {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		m.Email = email
		m.Name = strings.TrimSpace(m.Name)
		if m.Role == "" {
			m.Role = models.RoleMember
		}
		out = append(out, m)
	}
	return out
}

// validateInvitees checks invitees after normalization, so padded or
// mixed-case emails are accepted and blank entries are already gone.
func (s *FamilyService) validateInvitees(members []MemberInput) error {
	return s.validator.Validate(struct {
		Members []MemberInput `json:"members" validate:"dive"`
	}{members})
}

func buildInvitations(familyID, invitedBy string, members []MemberInput) []models.Invitation {
	invitations := make([]models.Invitation, 0, len(members))
	for _, m := range members {
		invitations = append(invitations, models.Invitation{
			FamilyID:  familyID,
			Email:     m.Email,
			Name:      m.Name,
			Role:      m.Role,
			InvitedBy: invitedBy,
			Status:    models.InvitationPending,
		})
	}
	return invitations
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsUser(members []models.FamilyMember, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
