package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's login
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// SubjectLeaderboardKey returns the sorted-set key ranking best scores for a subject
func (r *CacheKeyStruct) SubjectLeaderboardKey(subjectID int) string {
	return fmt.Sprintf("leaderboard:subject:%d", subjectID)
}

// SubjectLeaderboardNamesKey returns the hash key mapping student id to display name
func (r *CacheKeyStruct) SubjectLeaderboardNamesKey(subjectID int) string {
	return fmt.Sprintf("leaderboard:subject:%d:names", subjectID)
}

var CacheKey = NewCacheKeyStruct()
