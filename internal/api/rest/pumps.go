package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/pressure"
	"github.com/KevinKickass/PumpFleet/internal/types"
)

// PumpView is a pump with its pressure summary.
type PumpView struct {
	types.Pump
	Stats pressure.Stats `json:"stats"`
}

// PumpDetail adds the hourly series for the detail chart.
type PumpDetail struct {
	PumpView
	Series []pressure.Point `json:"series"`
}

type PageView struct {
	Items      []PumpView            `json:"items"`
	Number     int                   `json:"page"`
	Size       int                   `json:"page_size"`
	TotalItems int                   `json:"total_items"`
	TotalPages int                   `json:"total_pages"`
	Links      []collection.PageLink `json:"links"`
}

// ListResponse is the list screen: flags plus one page of the displayed
// collection.
type ListResponse struct {
	Loading         bool               `json:"loading"`
	Error           string             `json:"error,omitempty"`
	TotalPumps      int                `json:"total_pumps"`
	ShowSearch      bool               `json:"show_search"`
	SearchTerm      string             `json:"search_term"`
	EditMode        bool               `json:"edit_mode"`
	Selected        []string           `json:"selected"`
	ShowDeleteModal bool               `json:"show_delete_modal"`
	SortKey         collection.SortKey `json:"sort_key,omitempty"`
	Page            PageView           `json:"page"`
}

type SearchRequest struct {
	Term string `json:"term" binding:"max=200"`
}

type SortRequest struct {
	Key collection.SortKey `json:"key"`
}

type SelectRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

type DeleteResponse struct {
	Removed []string         `json:"removed"`
	State   collection.State `json:"state"`
}

func newPumpView(p types.Pump) PumpView {
	return PumpView{Pump: p, Stats: pressure.GetStats(p.Pressure)}
}

func (s *Server) controller(c *gin.Context) *collection.Controller {
	return s.registry.Get(auth.Username(c))
}

// GET /api/v1/pumps?page=1&page_size=10
func (s *Server) listPumps(c *gin.Context) {
	number, err := queryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodePumpBadRequest, "Invalid page", err.Error()))
		return
	}
	size, err := queryInt(c, "page_size", s.pageSize)
	if err != nil || size < 1 || size > 100 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodePumpBadRequest, "page_size must be between 1 and 100", nil))
		return
	}

	ctrl := s.controller(c)
	st := ctrl.State()
	page := ctrl.Page(number, size)

	items := make([]PumpView, len(page.Items))
	for i, p := range page.Items {
		items[i] = newPumpView(p)
	}

	c.JSON(http.StatusOK, ListResponse{
		Loading:         st.Loading,
		Error:           st.Error,
		TotalPumps:      st.TotalPumps,
		ShowSearch:      st.ShowSearch,
		SearchTerm:      st.SearchTerm,
		EditMode:        st.EditMode,
		Selected:        st.Selected,
		ShowDeleteModal: st.ShowDeleteModal,
		SortKey:         st.SortKey,
		Page: PageView{
			Items:      items,
			Number:     page.Number,
			Size:       page.Size,
			TotalItems: page.TotalItems,
			TotalPages: page.TotalPages,
			Links:      page.Links,
		},
	})
}

// GET /api/v1/pumps/state
func (s *Server) getPumpState(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller(c).State())
}

// GET /api/v1/pumps/:id
// Served from the user's collection once it is loaded, so edits show up.
// Otherwise the source is asked directly and no collection is started.
func (s *Server) getPump(c *gin.Context) {
	id := c.Param("id")

	var (
		pump  types.Pump
		found bool
	)
	if ctrl, ok := s.registry.Lookup(auth.Username(c)); ok && ctrl.Loaded() {
		pump, found = ctrl.Find(id)
	} else {
		p, err := s.source.FetchByID(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("Failed to fetch pump", zap.String("pump_id", id), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(
				types.CodePumpUnavailable, "Failed to load pump data. Please try again.", nil))
			return
		}
		if p != nil {
			pump, found = *p, true
		}
	}

	if !found {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(
			types.CodePumpNotFound, fmt.Sprintf("Pump with ID %q not found", id), nil))
		return
	}

	c.JSON(http.StatusOK, PumpDetail{
		PumpView: newPumpView(pump),
		Series:   pressure.HourlySeries(pump.Pressure),
	})
}

// POST /api/v1/pumps
func (s *Server) createPump(c *gin.Context) {
	var form types.PumpForm
	if err := c.ShouldBindJSON(&form); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	pump := s.controller(c).Create(form.Draft(time.Now()))
	c.JSON(http.StatusCreated, newPumpView(pump))
}

// PATCH /api/v1/pumps/:id
func (s *Server) updatePump(c *gin.Context) {
	var patch types.PumpPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	id := c.Param("id")
	pump, err := s.controller(c).Update(id, patch)
	if errors.Is(err, collection.ErrPumpNotFound) {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(
			types.CodePumpNotFound, fmt.Sprintf("Pump with ID %q not found", id), nil))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeInternal, "Failed to update pump", err.Error()))
		return
	}

	c.JSON(http.StatusOK, newPumpView(pump))
}

// POST /api/v1/pumps/search
func (s *Server) searchPumps(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	ctrl := s.controller(c)
	ctrl.Search(req.Term)
	c.JSON(http.StatusOK, ctrl.State())
}

// DELETE /api/v1/pumps/search
func (s *Server) clearSearch(c *gin.Context) {
	ctrl := s.controller(c)
	ctrl.ClearSearch()
	c.JSON(http.StatusOK, ctrl.State())
}

// POST /api/v1/pumps/search/toggle
func (s *Server) toggleSearch(c *gin.Context) {
	ctrl := s.controller(c)
	ctrl.ToggleSearch()
	c.JSON(http.StatusOK, ctrl.State())
}

// POST /api/v1/pumps/sort
// Unknown keys leave the order unchanged.
func (s *Server) sortPumps(c *gin.Context) {
	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	ctrl := s.controller(c)
	ctrl.Sort(req.Key)
	c.JSON(http.StatusOK, ctrl.State())
}

// POST /api/v1/pumps/edit-mode/toggle
func (s *Server) toggleEditMode(c *gin.Context) {
	ctrl := s.controller(c)
	ctrl.ToggleEditMode()
	c.JSON(http.StatusOK, ctrl.State())
}

// PUT /api/v1/pumps/selection
func (s *Server) selectAll(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	ctrl := s.controller(c)
	ctrl.SelectAll(*req.Selected)
	c.JSON(http.StatusOK, ctrl.State())
}

// PUT /api/v1/pumps/selection/:id
func (s *Server) selectPump(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, types.CodePumpBadRequest, err)
		return
	}

	ctrl := s.controller(c)
	ctrl.SelectPump(c.Param("id"), *req.Selected)
	c.JSON(http.StatusOK, ctrl.State())
}

// POST /api/v1/pumps/delete/request
func (s *Server) requestDelete(c *gin.Context) {
	ctrl := s.controller(c)
	ctrl.RequestDelete()
	c.JSON(http.StatusOK, ctrl.State())
}

// POST /api/v1/pumps/delete/confirm
func (s *Server) confirmDelete(c *gin.Context) {
	ctrl := s.controller(c)
	removed := ctrl.ConfirmDelete()
	if removed == nil {
		removed = []string{}
	}
	c.JSON(http.StatusOK, DeleteResponse{Removed: removed, State: ctrl.State()})
}

// POST /api/v1/pumps/delete/cancel
func (s *Server) cancelDelete(c *gin.Context) {
	ctrl := s.controller(c)
	ctrl.CancelDelete()
	c.JSON(http.StatusOK, ctrl.State())
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
