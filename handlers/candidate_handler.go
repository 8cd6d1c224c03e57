package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"school-evoting-backend/database"
	"school-evoting-backend/models"
)

// ListCandidates returns the candidates a voter may choose from, ordered
// by ballot position. Inactive candidates are hidden.
func ListCandidates(c *gin.Context) {
	var candidates []models.Candidate
	if err := database.DB.WithContext(c.Request.Context()).
		Where("is_active = ?", true).
		Order("position asc, id asc").
		Find(&candidates).Error; err != nil {
		log.Printf("listing candidates failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "candidates unavailable"})
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// ListAllCandidates returns every candidate including inactive ones.
// Admin only.
func ListAllCandidates(c *gin.Context) {
	var candidates []models.Candidate
	if err := database.DB.WithContext(c.Request.Context()).
		Order("position asc, id asc").
		Find(&candidates).Error; err != nil {
		log.Printf("listing candidates failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "candidates unavailable"})
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// CandidateInput creates or updates a candidate.
type CandidateInput struct {
	Name     string `json:"name" binding:"required"`
	Motto    string `json:"motto"`
	IsActive *bool  `json:"is_active"`
	Position int    `json:"position"`
}

// CreateCandidate adds a candidate to the ballot. Admin only.
func CreateCandidate(c *gin.Context) {
	var input CandidateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	candidate := models.Candidate{
		Name:     input.Name,
		Motto:    input.Motto,
		IsActive: true,
		Position: input.Position,
	}
	if input.IsActive != nil {
		candidate.IsActive = *input.IsActive
	}

	if err := database.DB.WithContext(c.Request.Context()).Create(&candidate).Error; err != nil {
		log.Printf("creating candidate failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create candidate"})
		return
	}

	c.JSON(http.StatusCreated, candidate)
}

// UpdateCandidate edits a candidate. Admin only.
func UpdateCandidate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate ID"})
		return
	}

	var input CandidateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	var candidate models.Candidate
	if err := database.DB.WithContext(c.Request.Context()).First(&candidate, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
		} else {
			log.Printf("loading candidate failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update candidate"})
		}
		return
	}

	candidate.Name = input.Name
	candidate.Motto = input.Motto
	candidate.Position = input.Position
	if input.IsActive != nil {
		candidate.IsActive = *input.IsActive
	}

	if err := database.DB.WithContext(c.Request.Context()).Save(&candidate).Error; err != nil {
		log.Printf("saving candidate failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update candidate"})
		return
	}

	c.JSON(http.StatusOK, candidate)
}

// DeleteCandidate removes a candidate from the ballot. Existing votes for
// the candidate stay in the tally; deactivation is usually the better
// operation once voting has started.
func DeleteCandidate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate ID"})
		return
	}

	result := database.DB.WithContext(c.Request.Context()).Delete(&models.Candidate{}, uint(id))
	if result.Error != nil {
		log.Printf("deleting candidate failed: %v", result.Error)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete candidate"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "candidate deleted"})
}
