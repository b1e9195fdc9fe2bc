package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/classroom-sync/internal/database"
	"github.com/yukikurage/classroom-sync/internal/dto"
	"github.com/yukikurage/classroom-sync/internal/logger"
	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/repository"
	"github.com/yukikurage/classroom-sync/internal/services"
	"gorm.io/gorm"
)

// PendingHandlerTestSuite defines the test suite for PendingHandler
type PendingHandlerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	handler *PendingHandler
}

// SetupTest runs before each test
func (suite *PendingHandlerTestSuite) SetupTest() {
	suite.db = openTestDB(suite.T())

	repo := repository.NewCollectionRepository(database.GetDB())
	suite.handler = NewPendingHandler(services.NewPendingService(repo, nil, logger.Component(logger.Discard(), "pending")))
}

// TearDownTest runs after each test
func (suite *PendingHandlerTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *PendingHandlerTestSuite) createTestUser(username string, role models.UserRole, courses ...string) {
	suite.Require().NoError(suite.db.Create(&models.User{Username: username, Role: role, ActiveCourses: courses}).Error)
}

func (suite *PendingHandlerTestSuite) createTestTask(id, course string, due time.Time) {
	suite.Require().NoError(suite.db.Create(&models.Task{ID: id, Title: "Task " + id, Course: course, DueDate: models.NewTimestamp(due)}).Error)
}

func (suite *PendingHandlerTestSuite) getPending(username string, role models.UserRole) (int, dto.PendingViewResponse) {
	c, w := createAuthContext("GET", "/api/pending", nil, username, role)
	suite.handler.GetPending(c)

	var resp dto.PendingViewResponse
	if w.Code == http.StatusOK {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

// TestGetPending_Student tests the pending view of a student
func (suite *PendingHandlerTestSuite) TestGetPending_Student() {
	tomorrow := time.Now().Add(24 * time.Hour)
	suite.createTestUser("u1", models.RoleStudent, "C1")
	suite.createTestTask("t1", "C1", tomorrow)
	suite.createTestTask("t2", "C1", tomorrow)
	suite.createTestTask("t3", "C2", tomorrow)
	suite.Require().NoError(suite.db.Create(&models.Comment{ID: "g1", TaskID: "t2", StudentUsername: "u1", IsGrade: true}).Error)
	suite.Require().NoError(suite.db.Create(&models.Comment{ID: "c1", TaskID: "t1", StudentUsername: "prof", Comment: "Remember the sources"}).Error)
	suite.Require().NoError(suite.db.Create(&models.Notification{
		ID: "n1", Type: models.NotificationNewTask, TaskID: "t1", TargetUsernames: []string{"u1"}, Timestamp: models.NewTimestamp(time.Now()),
	}).Error)
	suite.Require().NoError(suite.db.Create(&models.Notification{
		ID: "n2", Type: models.NotificationTeacherComment, TaskID: "t1", TargetUsernames: []string{"u1"}, FromUsername: "prof", Timestamp: models.NewTimestamp(time.Now()),
	}).Error)

	code, resp := suite.getPending("u1", models.RoleStudent)

	suite.Require().Equal(http.StatusOK, code)
	suite.Require().Len(resp.PendingTasks, 1)
	assert.Equal(suite.T(), "t1", resp.PendingTasks[0].ID)
	assert.Len(suite.T(), resp.UnreadComments, 1)
	assert.Len(suite.T(), resp.UnreadNotifications, 2)
	assert.Equal(suite.T(), dto.PendingCountsDTO{Tasks: 1, Comments: 1, Notifications: 2, NotificationBadge: 1}, resp.Counts)
	assert.False(suite.T(), resp.IsCaughtUp)
}

// TestGetPending_CaughtUp tests the empty state
func (suite *PendingHandlerTestSuite) TestGetPending_CaughtUp() {
	suite.createTestUser("u1", models.RoleStudent, "C1")
	suite.createTestTask("t1", "C1", time.Now().Add(-time.Hour))

	code, resp := suite.getPending("u1", models.RoleStudent)

	suite.Require().Equal(http.StatusOK, code)
	assert.True(suite.T(), resp.IsCaughtUp)
	assert.NotNil(suite.T(), resp.PendingTasks)
	assert.Equal(suite.T(), 0, resp.Counts.NotificationBadge)
}

// TestGetPending_StoreDown tests that an unreadable store shows nothing pending
func (suite *PendingHandlerTestSuite) TestGetPending_StoreDown() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()

	code, resp := suite.getPending("u1", models.RoleStudent)

	assert.Equal(suite.T(), http.StatusOK, code)
	assert.True(suite.T(), resp.IsCaughtUp)
}

// TestGetPending_Unauthorized tests the missing session case
func (suite *PendingHandlerTestSuite) TestGetPending_Unauthorized() {
	code, _ := suite.getPending("", "")

	assert.Equal(suite.T(), http.StatusUnauthorized, code)
}

// TestPendingHandlerTestSuite runs the test suite
func TestPendingHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(PendingHandlerTestSuite))
}
