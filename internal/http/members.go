package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/database/members"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/validation"
)

// ReasonCannotDeleteSelf is reported when an admin tries to delete their own account.
const ReasonCannotDeleteSelf = "cannot_delete_self"

// MembersController handles the membership endpoints.
type MembersController struct {
	store      MemberStore
	borrowings BorrowingStore
	hasher     PasswordHasher
	auditor    Auditor
}

func NewMembersController(store MemberStore, borrowings BorrowingStore, hasher PasswordHasher, auditor Auditor) *MembersController {
	return &MembersController{store: store, borrowings: borrowings, hasher: hasher, auditor: auditorOrNop(auditor)}
}

type createMemberRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Username    string `json:"username" binding:"required,username"`
	Email       string `json:"email" binding:"omitempty,email,max=254"`
	Password    string `json:"password" binding:"omitempty,min=8,max=72"`
	IsAdmin     bool   `json:"isAdmin"`
	AdminRating *int   `json:"adminRating" binding:"omitempty,gte=1,lte=5"`
	AdminNotes  string `json:"adminNotes" binding:"max=5000"`
}

type updateMemberRequest struct {
	Name          *string `json:"name" binding:"omitempty,max=255"`
	Username      *string `json:"username" binding:"omitempty,username"`
	Email         *string `json:"email" binding:"omitempty,email,max=254"`
	Password      *string `json:"password" binding:"omitempty,min=8,max=72"`
	IsAdmin       *bool   `json:"isAdmin"`
	AdminRating   *int    `json:"adminRating" binding:"omitempty,gte=0,lte=5"` // 0 clears
	AdminNotes    *string `json:"adminNotes" binding:"omitempty,max=5000"`
	EmailVerified *bool   `json:"emailVerified"`
}

// ListMembers handles GET /api/members
func (mc *MembersController) ListMembers(c *gin.Context) {
	mc.list(c, strings.TrimSpace(c.Query("q")))
}

// SearchMembers handles GET /api/members/search?q=
// Matches name, username or email.
func (mc *MembersController) SearchMembers(c *gin.Context) {
	q, ok := searchQuery(c)
	if !ok {
		return
	}
	mc.list(c, q)
}

func (mc *MembersController) list(c *gin.Context, query string) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	list, total, err := mc.store.ListMembers(c.Request.Context(), query, page)
	if err != nil {
		respondInternalError(c, err, "list members")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(list, page, total))
}

// GetMember handles GET /api/members/:id
// Members may read their own record; staff notes are only shown to admins.
func (mc *MembersController) GetMember(c *gin.Context) {
	id, ok := mc.selfOrAdmin(c)
	if !ok {
		return
	}
	member, err := mc.store.GetMemberByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "member")
		return
	}
	if !auth.IsAdmin(c) {
		member.AdminRating = nil
		member.AdminNotes = ""
	}
	c.JSON(http.StatusOK, member)
}

// GetMemberBorrowings handles GET /api/members/:id/borrowings
func (mc *MembersController) GetMemberBorrowings(c *gin.Context) {
	id, ok := mc.selfOrAdmin(c)
	if !ok {
		return
	}
	if _, err := mc.store.GetMemberByID(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "member")
		return
	}
	scope, ok := parseScope(c)
	if !ok {
		return
	}
	listBorrowings(c, mc.borrowings, borrowings.ListFilter{UserID: id, Scope: scope})
}

// CreateMember handles POST /api/members
// Accounts created by staff count as verified.
func (mc *MembersController) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := blankFields(map[string]*string{"name": &req.Name}); len(errs) > 0 {
		respondValidation(c, errs...)
		return
	}

	member := &entities.Member{
		Name:          strings.TrimSpace(req.Name),
		Username:      req.Username,
		IsAdmin:       req.IsAdmin,
		AdminRating:   req.AdminRating,
		AdminNotes:    req.AdminNotes,
		EmailVerified: true,
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		member.Email = &email
	}
	if req.Password != "" {
		hash, err := mc.hasher.HashPassword(req.Password)
		if err != nil {
			respondInternalError(c, err, "hash password")
			return
		}
		member.PasswordHash = hash
	}

	if err := mc.store.CreateMember(c.Request.Context(), member); err != nil {
		respondStoreError(c, err, "member")
		return
	}
	mc.auditor.LogMembership(auth.AuditActor(c), "member_create", member)
	c.JSON(http.StatusCreated, member)
}

// UpdateMember handles PUT /api/members/:id
func (mc *MembersController) UpdateMember(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := blankFields(map[string]*string{"name": req.Name, "username": req.Username}); len(errs) > 0 {
		respondValidation(c, errs...)
		return
	}
	if id == auth.GetUserID(c) && req.IsAdmin != nil && !*req.IsAdmin {
		respondValidation(c, validation.FieldError{Field: "isAdmin", Message: "you cannot remove your own admin rights"})
		return
	}

	upd := members.Update{
		Name:          trimmed(req.Name),
		Username:      req.Username,
		Email:         req.Email,
		IsAdmin:       req.IsAdmin,
		AdminRating:   req.AdminRating,
		AdminNotes:    req.AdminNotes,
		EmailVerified: req.EmailVerified,
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := mc.hasher.HashPassword(*req.Password)
		if err != nil {
			respondInternalError(c, err, "hash password")
			return
		}
		upd.PasswordHash = &hash
	}

	member, err := mc.store.UpdateMember(c.Request.Context(), id, upd)
	if err != nil {
		respondStoreError(c, err, "member")
		return
	}
	mc.auditor.LogMembership(auth.AuditActor(c), "member_update", member)
	c.JSON(http.StatusOK, member)
}

// DeleteMember handles DELETE /api/members/:id
func (mc *MembersController) DeleteMember(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if id == auth.GetUserID(c) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "you cannot delete your own account", Reason: ReasonCannotDeleteSelf})
		return
	}
	member, err := mc.store.GetMemberByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "member")
		return
	}
	if err := mc.store.DeleteMember(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "member")
		return
	}
	mc.auditor.LogDelete(auth.AuditActor(c), "member", id, member.Username)
	c.JSON(http.StatusOK, gin.H{"message": "member deleted"})
}

// selfOrAdmin parses :id and allows the request when the caller is an admin
// or the member themselves.
func (mc *MembersController) selfOrAdmin(c *gin.Context) (uint, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return 0, false
	}
	if !auth.IsAdmin(c) && auth.GetUserID(c) != id {
		respondForbidden(c, "admin access required")
		return 0, false
	}
	return id, true
}
