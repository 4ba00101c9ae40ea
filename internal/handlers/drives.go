package handlers

import (
	"errors"
	"strings"

	"github.com/docshare/conduit/internal/middleware"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/services"
	"github.com/docshare/conduit/internal/tree"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DrivesHandler struct {
	Drives *services.DriveService
}

func NewDrivesHandler(drives *services.DriveService) *DrivesHandler {
	return &DrivesHandler{Drives: drives}
}

type createDriveRequest struct {
	Name     string `json:"name"`
	Capacity *int64 `json:"capacity"`
}

type addMemberRequest struct {
	UserID string `json:"userID"`
}

func (h *DrivesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	drives, err := h.Drives.ListForUser(c.UserContext(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing drives")
	}

	visible := make([]models.Drive, 0, len(drives))
	for _, drive := range drives {
		if middleware.TokenAllowsDrive(c, drive.ID) {
			visible = append(visible, drive)
		}
	}
	return utils.Success(c, fiber.StatusOK, visible)
}

func (h *DrivesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		return utils.Error(c, fiber.StatusBadRequest, "capacity cannot be negative")
	}

	drive, err := h.Drives.CreateSharedDrive(c.UserContext(), currentUser, strings.TrimSpace(req.Name), req.Capacity)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDriveName) {
			return utils.Error(c, fiber.StatusBadRequest, "name is required")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating drive")
	}
	return utils.Success(c, fiber.StatusCreated, drive)
}

func (h *DrivesHandler) Get(c *fiber.Ctx) error {
	_, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, drive)
}

func (h *DrivesHandler) Delete(c *fiber.Ctx) error {
	currentUser, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}
	if drive.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "only the owner can delete a drive")
	}

	if err := h.Drives.Deactivate(c.UserContext(), drive.ID); err != nil {
		if errors.Is(err, services.ErrPersonalDrive) {
			return utils.Error(c, fiber.StatusBadRequest, "personal drives cannot be deleted")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting drive")
	}

	logger.InfoWithUser(currentUser.ID.String(), "drive_deleted", map[string]interface{}{
		"drive_id": drive.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "drive deleted"})
}

func (h *DrivesHandler) AddMember(c *fiber.Ctx) error {
	currentUser, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}
	if drive.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "only the owner can add members")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	userID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Drives.AddMember(c.UserContext(), drive.ID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrPersonalDrive):
			return utils.Error(c, fiber.StatusBadRequest, "personal drives cannot have members")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed adding member")
		}
	}

	logger.InfoWithUser(currentUser.ID.String(), "drive_member_added", map[string]interface{}{
		"drive_id":       drive.ID.String(),
		"target_user_id": userID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"message": "member added"})
}

func (h *DrivesHandler) RootNodes(c *fiber.Ctx) error {
	_, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}

	nodes, err := h.Drives.RootNodes(c.UserContext(), drive.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing nodes")
	}
	return utils.Success(c, fiber.StatusOK, nodes)
}

func (h *DrivesHandler) Children(c *fiber.Ctx) error {
	_, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}

	nodeID, err := parseUUID(c.Params("nodeId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid node id")
	}

	children, err := h.Drives.Children(c.UserContext(), drive.ID, nodeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "node not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing children")
	}
	return utils.Success(c, fiber.StatusOK, children)
}

func (h *DrivesHandler) Tree(c *fiber.Ctx) error {
	_, drive, err := h.authorizedDrive(c)
	if err != nil || drive == nil {
		return err
	}

	entries, err := h.Drives.Tree(c.UserContext(), drive.ID)
	if err != nil {
		if errors.Is(err, tree.ErrDepthExceeded) {
			return utils.Error(c, fiber.StatusUnprocessableEntity, "drive tree is deeper than the configured limit")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading tree")
	}
	return utils.Success(c, fiber.StatusOK, entries)
}

// authorizedDrive loads the :id drive for the current user. When the returned
// drive is nil the error response has already been written.
func (h *DrivesHandler) authorizedDrive(c *fiber.Ctx) (*models.User, *models.Drive, error) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return nil, nil, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	driveID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, nil, utils.Error(c, fiber.StatusBadRequest, "invalid drive id")
	}

	if !middleware.TokenAllowsDrive(c, driveID) {
		return nil, nil, utils.Error(c, fiber.StatusForbidden, "token is not scoped to this drive")
	}

	drive, err := h.Drives.Get(c.UserContext(), driveID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.Error(c, fiber.StatusNotFound, "drive not found")
		}
		return nil, nil, utils.Error(c, fiber.StatusInternalServerError, "failed loading drive")
	}

	if !h.Drives.HasAccess(c.UserContext(), driveID, currentUser.ID) {
		return nil, nil, utils.Error(c, fiber.StatusForbidden, "drive access denied")
	}
	return currentUser, drive, nil
}
