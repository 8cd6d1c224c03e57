package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"school-evoting-backend/cache"
	"school-evoting-backend/database"
	"school-evoting-backend/models"
	"school-evoting-backend/service"
)

// VoterInput registers one eligible voter.
type VoterInput struct {
	StudentNumber string `json:"student_number" binding:"required"`
	Name          string `json:"name" binding:"required"`
	ClassName     string `json:"class_name"`
}

// CreateVoter registers a voter on the roll. Admin only.
func CreateVoter(c *gin.Context) {
	var input VoterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_number and name are required"})
		return
	}

	voter := models.Voter{
		StudentNumber: input.StudentNumber,
		Name:          input.Name,
		ClassName:     input.ClassName,
	}

	if err := database.DB.WithContext(c.Request.Context()).Create(&voter).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "student number already registered"})
			return
		}
		log.Printf("creating voter failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register voter"})
		return
	}

	c.JSON(http.StatusCreated, voter)
}

// ImportVoters registers a batch of voters in one transaction. Rows whose
// student number is already on the roll are reported, not failed.
func ImportVoters(c *gin.Context) {
	var inputs []VoterInput
	if err := c.ShouldBindJSON(&inputs); err != nil || len(inputs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a non-empty voter list is required"})
		return
	}

	imported := 0
	duplicates := make([]string, 0)

	err := database.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, input := range inputs {
			if input.StudentNumber == "" || input.Name == "" {
				return errors.New("every row needs student_number and name")
			}
			voter := models.Voter{
				StudentNumber: input.StudentNumber,
				Name:          input.Name,
				ClassName:     input.ClassName,
			}
			if err := tx.Create(&voter).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					duplicates = append(duplicates, input.StudentNumber)
					continue
				}
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		log.Printf("importing voters failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported":   imported,
		"duplicates": duplicates,
	})
}

// ListVoters returns the voter roll with voting status. Admin only. The
// response shows whether each voter has voted, never what they voted for.
func ListVoters(c *gin.Context) {
	var voters []models.Voter
	query := database.DB.WithContext(c.Request.Context()).Order("class_name asc, student_number asc")

	if class := c.Query("class"); class != "" {
		query = query.Where("class_name = ?", class)
	}

	if err := query.Find(&voters).Error; err != nil {
		log.Printf("listing voters failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "voter roll unavailable"})
		return
	}
	c.JSON(http.StatusOK, voters)
}

// IssueToken creates or regenerates the voting token for one voter. The
// secret appears in this response only; it is not retrievable later.
func IssueToken(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voter ID"})
		return
	}

	token, err := tokenSvc.IssueToken(c.Request.Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVoterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "voter not found"})
		case errors.Is(err, service.ErrTokenUsed):
			c.JSON(http.StatusConflict, gin.H{"error": "this voter has already voted, token cannot be reissued"})
		default:
			log.Printf("issuing token failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		}
		return
	}

	recordTokenInBloom(c, token.Secret)

	c.JSON(http.StatusOK, token)
}

// BulkIssueTokens creates tokens for every voter without one. Guarded by a
// distributed lock so two admins cannot run it concurrently.
func BulkIssueTokens(c *gin.Context) {
	var report *service.BulkIssueReport

	err := cache.GetLockService().WithLock("token_bulk_issue", 60*time.Second, func() error {
		var err error
		report, err = tokenSvc.BulkIssue(c.Request.Context())
		return err
	})
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			c.JSON(http.StatusConflict, gin.H{"error": "a bulk issuance is already in progress"})
			return
		}
		log.Printf("bulk issuing tokens failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}

	for _, token := range report.Tokens {
		recordTokenInBloom(c, token.Secret)
	}

	c.JSON(http.StatusOK, report)
}

// recordTokenInBloom adds an issued secret to the login prefilter. Best
// effort; the filter is advisory.
func recordTokenInBloom(c *gin.Context, secret string) {
	if filter := cache.InitTokenBloomFilter(); filter != nil {
		if err := filter.Add(c, secret); err != nil {
			log.Printf("adding token to bloom filter failed: %v", err)
		}
	}
}
