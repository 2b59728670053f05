package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openkite/kitehub/internal/middleware"
	"github.com/openkite/kitehub/internal/models"
	"github.com/openkite/kitehub/internal/services"
	"github.com/openkite/kitehub/pkg/response"
	"gorm.io/gorm"
)

// ProjectMemberHandler exposes the membership operations: listing,
// direct add, removal, self-leave, access requests, approval and
// cross-project import. Authorization outcomes from the service layer
// are translated here: a missing row and an insufficient access level
// both surface as 404 so the resource stays hidden, while the
// explicit owner-self-leave rejection is a plain 403.
type ProjectMemberHandler struct {
	members  *services.MembershipService
	projects *services.ProjectService
}

func NewProjectMemberHandler(db *gorm.DB, members *services.MembershipService) *ProjectMemberHandler {
	return &ProjectMemberHandler{
		members:  members,
		projects: services.NewProjectService(db),
	}
}

type AddMembersRequest struct {
	UserIDs     []uint `json:"user_ids"`
	AccessLevel int    `json:"access_level" binding:"required"`
}

// List returns all active members of a project.
// GET /api/projects/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	members, err := h.members.ListMembers(projectID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, members)
}

// ListRequests returns the project's pending access requests. Only
// master-or-above members may see the queue.
// GET /api/projects/:id/access-requests
func (h *ProjectMemberHandler) ListRequests(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	member, err := h.members.Find(projectID, middleware.GetUserID(c))
	if err != nil || member.Status != models.MembershipActive ||
		member.AccessLevel < models.MasterAccess {
		response.NotFound(c, "not found")
		return
	}

	requests, err := h.members.ListAccessRequests(projectID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, requests)
}

// Add adds users to a project at the requested access level.
// POST /api/projects/:id/members
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	added, err := h.members.AddMembers(projectID, middleware.GetUserID(c),
		req.UserIDs, models.AccessLevel(req.AccessLevel))
	switch {
	case errors.Is(err, services.ErrNoUsers):
		response.Success(c, gin.H{"added": 0, "message": "No users specified."})
	case err != nil:
		h.memberError(c, err)
	default:
		response.Success(c, gin.H{"added": added, "message": "Users were successfully added."})
	}
}

// Remove deletes a membership row, active or requested.
// DELETE /api/projects/:id/members/:memberID
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("memberID"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}

	if err := h.members.RemoveMember(projectID, middleware.GetUserID(c), uint(memberID)); err != nil {
		h.memberError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "member removed"})
}

// Leave removes the caller's own membership or withdraws their
// pending request.
// DELETE /api/projects/:id/members/leave
func (h *ProjectMemberHandler) Leave(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	outcome, err := h.members.Leave(projectID, middleware.GetUserID(c))
	if errors.Is(err, services.ErrForbidden) {
		// An owner may not leave their own project; unlike the other
		// permission failures this one is not hidden.
		response.Forbidden(c, "An owner cannot leave the project.")
		return
	}
	if err != nil {
		h.memberError(c, err)
		return
	}

	if outcome == services.LeaveRequestWithdrawn {
		response.Success(c, gin.H{"message": "Your access request to the project has been withdrawn."})
		return
	}

	message := "You left the project."
	if project, err := h.projects.GetByID(projectID); err == nil {
		message = fmt.Sprintf("You left the %q project.", project.Name)
	}
	response.Success(c, gin.H{"message": message})
}

// RequestAccess files an access request for the caller.
// POST /api/projects/:id/access-requests
func (h *ProjectMemberHandler) RequestAccess(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	request, err := h.members.Requests().RequestAccess(projectID, middleware.GetUserID(c))
	if err != nil {
		h.memberError(c, err)
		return
	}

	response.Success(c, gin.H{
		"request": request,
		"message": "Your request for access has been queued for review.",
	})
}

// Approve turns a pending request into an active membership.
// POST /api/projects/:id/access-requests/:memberID/approve
func (h *ProjectMemberHandler) Approve(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("memberID"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}

	member, err := h.members.ApproveRequest(projectID, middleware.GetUserID(c), uint(memberID))
	if err != nil {
		h.memberError(c, err)
		return
	}
	response.Success(c, member)
}

// Import copies members from a source project the caller belongs to.
// POST /api/projects/:id/members/import?source_project_id=N
func (h *ProjectMemberHandler) Import(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	sourceID, err := strconv.ParseUint(c.Query("source_project_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid source project id")
		return
	}

	actorID := middleware.GetUserID(c)

	// Destination-side precondition: importing is a member-management
	// operation, so the caller must hold master access here.
	member, ferr := h.members.Find(projectID, actorID)
	if ferr != nil || member.Status != models.MembershipActive ||
		member.AccessLevel < models.MasterAccess {
		response.NotFound(c, "not found")
		return
	}

	imported, err := h.members.ImportMembers(projectID, actorID, uint(sourceID))
	if err != nil {
		h.memberError(c, err)
		return
	}
	response.Success(c, gin.H{"imported": imported, "message": "Successfully imported"})
}

func (h *ProjectMemberHandler) projectID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return 0, false
	}
	return uint(id), true
}

// memberError maps service outcomes onto the wire. Forbidden is
// reported as 404 to avoid confirming that the resource exists.
func (h *ProjectMemberHandler) memberError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrForbidden):
		response.NotFound(c, "not found")
	case errors.Is(err, services.ErrAlreadyMember):
		response.BadRequest(c, "You are already a member of this project.")
	case errors.Is(err, services.ErrAlreadyRequested):
		response.BadRequest(c, "You have already requested access to this project.")
	default:
		response.ServerError(c, err.Error())
	}
}
