package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openkite/kitehub/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an isolated in-memory database migrated with the
// membership schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Membership{},
		&models.ActivityEvent{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, Role: "user", AuthType: "local", IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func createTestProject(t *testing.T, db *gorm.DB, name string, ownerID uint) *models.Project {
	t.Helper()

	project := &models.Project{
		Name:       name,
		Path:       name,
		Visibility: models.PrivateVisibility,
		CreatedBy:  ownerID,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create project %s: %v", name, err)
	}
	owner := &models.Membership{
		ProjectID:   project.ID,
		UserID:      ownerID,
		AccessLevel: models.OwnerAccess,
		Status:      models.MembershipActive,
	}
	if err := db.Create(owner).Error; err != nil {
		t.Fatalf("failed to create owner membership: %v", err)
	}
	return project
}

func addMember(t *testing.T, db *gorm.DB, projectID, userID uint, level models.AccessLevel) *models.Membership {
	t.Helper()

	m := &models.Membership{
		ProjectID:   projectID,
		UserID:      userID,
		AccessLevel: level,
		Status:      models.MembershipActive,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to create membership: %v", err)
	}
	return m
}

func TestAddMembers_ByMaster(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	master := createTestUser(t, db, "master")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, master.ID, models.MasterAccess)

	svc := NewMembershipService(db, nil)
	added, err := svc.AddMembers(project.ID, master.ID, []uint{newcomer.ID}, models.DeveloperAccess)
	if err != nil {
		t.Fatalf("AddMembers error: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, expected 1", added)
	}

	members, err := svc.ListMembers(project.ID)
	if err != nil {
		t.Fatalf("ListMembers error: %v", err)
	}
	if len(members) != 3 {
		t.Errorf("member count = %d, expected 3", len(members))
	}
}

func TestAddMembers_DeveloperForbidden(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	dev := createTestUser(t, db, "dev")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, dev.ID, models.DeveloperAccess)

	svc := NewMembershipService(db, nil)
	_, err := svc.AddMembers(project.ID, dev.ID, []uint{newcomer.ID}, models.GuestAccess)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	var count int64
	db.Model(&models.Membership{}).Where("project_id = ?", project.ID).Count(&count)
	if count != 2 {
		t.Errorf("membership count = %d, expected 2 (no rows added)", count)
	}
}

func TestAddMembers_OwnerLevelNeverGrantable(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)

	// Not even the owner can hand out owner level through bulk add.
	_, err := svc.AddMembers(project.ID, owner.ID, []uint{newcomer.ID}, models.OwnerAccess)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestAddMembers_InvalidLevel(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	_, err := svc.AddMembers(project.ID, owner.ID, []uint{newcomer.ID}, models.AccessLevel(35))
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestAddMembers_UnknownProject(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	newcomer := createTestUser(t, db, "newcomer")
	createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	_, err := svc.AddMembers(9999, owner.ID, []uint{newcomer.ID}, models.DeveloperAccess)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var count int64
	db.Model(&models.Membership{}).Where("project_id = ?", 9999).Count(&count)
	if count != 0 {
		t.Errorf("rows for unknown project = %d, expected 0", count)
	}
}

func TestAddMembers_EmptyInput(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	_, err := svc.AddMembers(project.ID, owner.ID, nil, models.DeveloperAccess)
	if !errors.Is(err, ErrNoUsers) {
		t.Errorf("expected ErrNoUsers, got %v", err)
	}
}

func TestAddMembers_ExistingMemberSkipped(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	existing := createTestUser(t, db, "existing")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, existing.ID, models.ReporterAccess)

	svc := NewMembershipService(db, nil)
	added, err := svc.AddMembers(project.ID, owner.ID,
		[]uint{existing.ID, newcomer.ID}, models.DeveloperAccess)
	if err != nil {
		t.Fatalf("AddMembers error: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, expected 1 (existing member skipped)", added)
	}

	// The existing row keeps its original level.
	member, err := svc.Find(project.ID, existing.ID)
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if member.AccessLevel != models.ReporterAccess {
		t.Errorf("existing member level = %d, expected %d", member.AccessLevel, models.ReporterAccess)
	}
}

func TestRemoveMember_SelfAllowed(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	guest := createTestUser(t, db, "guest")
	project := createTestProject(t, db, "proj", owner.ID)
	row := addMember(t, db, project.ID, guest.ID, models.GuestAccess)

	svc := NewMembershipService(db, nil)
	if err := svc.RemoveMember(project.ID, guest.ID, row.ID); err != nil {
		t.Fatalf("self removal should succeed, got %v", err)
	}

	if _, err := svc.Find(project.ID, guest.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("membership should be gone, got %v", err)
	}
}

func TestRemoveMember_GuestCannotRemoveOthers(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	guest := createTestUser(t, db, "guest")
	victim := createTestUser(t, db, "victim")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, guest.ID, models.GuestAccess)
	row := addMember(t, db, project.ID, victim.ID, models.DeveloperAccess)

	svc := NewMembershipService(db, nil)
	err := svc.RemoveMember(project.ID, guest.ID, row.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestRemoveMember_OwnerCannotRemoveSelf(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	row, err := svc.Find(project.ID, owner.ID)
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}

	// Self-removal must not bypass the owner-cannot-leave rule.
	if err := svc.RemoveMember(project.ID, owner.ID, row.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("owner self-remove should be ErrForbidden, got %v", err)
	}

	var owners int64
	db.Model(&models.Membership{}).
		Where("project_id = ? AND access_level = ? AND status = ?",
			project.ID, models.OwnerAccess, models.MembershipActive).
		Count(&owners)
	if owners != 1 {
		t.Errorf("owner rows = %d, project must keep its owner", owners)
	}
}

func TestRemoveMember_NotFound(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	if err := svc.RemoveMember(project.ID, owner.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLeave_Member(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	dev := createTestUser(t, db, "dev")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, dev.ID, models.DeveloperAccess)

	svc := NewMembershipService(db, nil)
	outcome, err := svc.Leave(project.ID, dev.ID)
	if err != nil {
		t.Fatalf("Leave error: %v", err)
	}
	if outcome != LeaveLeft {
		t.Errorf("outcome = %d, expected LeaveLeft", outcome)
	}
}

func TestLeave_OwnerForbidden(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	_, err := svc.Leave(project.ID, owner.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("owner leave should be ErrForbidden, got %v", err)
	}

	// Owner row survives the rejected leave.
	member, ferr := svc.Find(project.ID, owner.ID)
	if ferr != nil {
		t.Fatalf("owner row should remain, got %v", ferr)
	}
	if member.AccessLevel != models.OwnerAccess {
		t.Errorf("owner level = %d, expected %d", member.AccessLevel, models.OwnerAccess)
	}
}

func TestLeave_WithdrawsPendingRequest(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	requester := createTestUser(t, db, "requester")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	if _, err := svc.Requests().RequestAccess(project.ID, requester.ID); err != nil {
		t.Fatalf("RequestAccess error: %v", err)
	}

	outcome, err := svc.Leave(project.ID, requester.ID)
	if err != nil {
		t.Fatalf("Leave error: %v", err)
	}
	if outcome != LeaveRequestWithdrawn {
		t.Errorf("outcome = %d, expected LeaveRequestWithdrawn", outcome)
	}
}

func TestLeave_NotFound(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	outsider := createTestUser(t, db, "outsider")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	if _, err := svc.Leave(project.ID, outsider.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApproveRequest_ByMaster(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	requester := createTestUser(t, db, "requester")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	request, err := svc.Requests().RequestAccess(project.ID, requester.ID)
	if err != nil {
		t.Fatalf("RequestAccess error: %v", err)
	}

	approved, err := svc.ApproveRequest(project.ID, owner.ID, request.ID)
	if err != nil {
		t.Fatalf("ApproveRequest error: %v", err)
	}
	if approved.Status != models.MembershipActive {
		t.Errorf("status = %q, expected active", approved.Status)
	}
	if approved.AccessLevel != models.GuestAccess {
		t.Errorf("level = %d, expected guest default", approved.AccessLevel)
	}

	members, _ := svc.ListMembers(project.ID)
	if len(members) != 2 {
		t.Errorf("member count = %d, expected 2", len(members))
	}
	requests, _ := svc.ListAccessRequests(project.ID)
	if len(requests) != 0 {
		t.Errorf("pending requests = %d, expected 0", len(requests))
	}
}

func TestApproveRequest_DeveloperForbidden(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	dev := createTestUser(t, db, "dev")
	requester := createTestUser(t, db, "requester")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, dev.ID, models.DeveloperAccess)

	svc := NewMembershipService(db, nil)
	request, err := svc.Requests().RequestAccess(project.ID, requester.ID)
	if err != nil {
		t.Fatalf("RequestAccess error: %v", err)
	}

	if _, err := svc.ApproveRequest(project.ID, dev.ID, request.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	// Request still pending after the rejected approval.
	requests, _ := svc.ListAccessRequests(project.ID)
	if len(requests) != 1 {
		t.Errorf("pending requests = %d, expected 1", len(requests))
	}
}

func TestApproveRequest_NotFound(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "proj", owner.ID)

	svc := NewMembershipService(db, nil)
	if _, err := svc.ApproveRequest(project.ID, owner.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportMembers_GuestOnSourceSuffices(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	colleague := createTestUser(t, db, "colleague")
	project := createTestProject(t, db, "dest", owner.ID)
	source := createTestProject(t, db, "source", colleague.ID)

	// The importer holds only guest access on the source project.
	addMember(t, db, source.ID, owner.ID, models.GuestAccess)

	svc := NewMembershipService(db, nil)
	imported, err := svc.ImportMembers(project.ID, owner.ID, source.ID)
	if err != nil {
		t.Fatalf("ImportMembers error: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, expected 1 (importer already on dest)", imported)
	}
}

func TestImportMembers_NoSourceMembership(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	stranger := createTestUser(t, db, "stranger")
	project := createTestProject(t, db, "dest", owner.ID)
	source := createTestProject(t, db, "source", stranger.ID)

	svc := NewMembershipService(db, nil)
	if _, err := svc.ImportMembers(project.ID, owner.ID, source.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestImportMembers_UnknownSource(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, "dest", owner.ID)

	svc := NewMembershipService(db, nil)
	if _, err := svc.ImportMembers(project.ID, owner.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportMembers_OwnerDowngradedToMaster(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	sourceOwner := createTestUser(t, db, "source_owner")
	project := createTestProject(t, db, "dest", owner.ID)
	source := createTestProject(t, db, "source", sourceOwner.ID)
	addMember(t, db, source.ID, owner.ID, models.DeveloperAccess)

	svc := NewMembershipService(db, nil)
	if _, err := svc.ImportMembers(project.ID, owner.ID, source.ID); err != nil {
		t.Fatalf("ImportMembers error: %v", err)
	}

	member, err := svc.Find(project.ID, sourceOwner.ID)
	if err != nil {
		t.Fatalf("source owner should be imported, got %v", err)
	}
	if member.AccessLevel != models.MasterAccess {
		t.Errorf("imported owner level = %d, expected master", member.AccessLevel)
	}
}

func TestImportMembers_PendingRequestNotCopied(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	sourceOwner := createTestUser(t, db, "source_owner")
	requester := createTestUser(t, db, "requester")
	project := createTestProject(t, db, "dest", owner.ID)
	source := createTestProject(t, db, "source", sourceOwner.ID)
	addMember(t, db, source.ID, owner.ID, models.ReporterAccess)

	svc := NewMembershipService(db, nil)
	if _, err := svc.Requests().RequestAccess(source.ID, requester.ID); err != nil {
		t.Fatalf("RequestAccess error: %v", err)
	}

	if _, err := svc.ImportMembers(project.ID, owner.ID, source.ID); err != nil {
		t.Fatalf("ImportMembers error: %v", err)
	}

	if _, err := svc.Find(project.ID, requester.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("requester should not be copied, got %v", err)
	}
}

func TestMembershipEvents_EmittedAfterCommit(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)

	var seen []string
	queue := NewSyncEventQueue()
	queue.SetProcessor(func(ctx context.Context, event *MemberEvent) error {
		seen = append(seen, event.Action)
		return nil
	})

	svc := NewMembershipService(db, queue)
	if _, err := svc.AddMembers(project.ID, owner.ID, []uint{newcomer.ID}, models.DeveloperAccess); err != nil {
		t.Fatalf("AddMembers error: %v", err)
	}

	if len(seen) != 1 || seen[0] != ActionMemberAdded {
		t.Errorf("events = %v, expected [%s]", seen, ActionMemberAdded)
	}
}

func TestMembershipEvents_NotEmittedOnFailure(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner")
	dev := createTestUser(t, db, "dev")
	newcomer := createTestUser(t, db, "newcomer")
	project := createTestProject(t, db, "proj", owner.ID)
	addMember(t, db, project.ID, dev.ID, models.DeveloperAccess)

	var seen []string
	queue := NewSyncEventQueue()
	queue.SetProcessor(func(ctx context.Context, event *MemberEvent) error {
		seen = append(seen, event.Action)
		return nil
	})

	svc := NewMembershipService(db, queue)
	if _, err := svc.AddMembers(project.ID, dev.ID, []uint{newcomer.ID}, models.GuestAccess); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if len(seen) != 0 {
		t.Errorf("no events expected on rejected add, got %v", seen)
	}
}
