package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// StudentService handles student account logic.
type StudentService struct {
	studentRepo *repository.StudentRepository
	auth        *AuthService
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, auth *AuthService) *StudentService {
	return &StudentService{studentRepo: studentRepo, auth: auth}
}

// GetByNISN retrieves a student by their NISN.
func (s *StudentService) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	return s.studentRepo.GetByNISN(ctx, nisn)
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// Register creates an account, or resets the password when overwrite is set
// and the NISN is already taken.
func (s *StudentService) Register(ctx context.Context, nisn, name, password string, overwrite bool) (*model.Student, error) {
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &model.Student{NISN: nisn, Name: name, PasswordHash: hash}
	err = s.studentRepo.Create(ctx, student)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, repository.ErrDuplicateNISN) || !overwrite {
		return nil, err
	}

	existing, err := s.studentRepo.GetByNISN(ctx, nisn)
	if err != nil {
		return nil, fmt.Errorf("get existing student: %w", err)
	}
	if err := s.studentRepo.UpdatePassword(ctx, existing.ID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return existing, nil
}
