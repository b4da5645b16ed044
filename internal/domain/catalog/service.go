package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	tests       TestRepository
	departments DepartmentRepository
}

func NewService(tests TestRepository, departments DepartmentRepository) *Service {
	return &Service{tests: tests, departments: departments}
}

func validateTest(t *LabTest) error {
	if t.Code == "" {
		return fmt.Errorf("code is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.SpecimenType == "" {
		return fmt.Errorf("specimen_type is required")
	}
	if t.MinRef != nil && t.MaxRef != nil && *t.MinRef >= *t.MaxRef {
		return fmt.Errorf("min_ref must be below max_ref")
	}
	return nil
}

func (s *Service) CreateTest(ctx context.Context, t *LabTest) error {
	if err := validateTest(t); err != nil {
		return err
	}
	t.Active = true
	return s.tests.Create(ctx, t)
}

func (s *Service) UpdateTest(ctx context.Context, t *LabTest) error {
	if err := validateTest(t); err != nil {
		return err
	}
	return s.tests.Update(ctx, t)
}

func (s *Service) GetTest(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.tests.GetByID(ctx, id)
}

func (s *Service) GetTestByCode(ctx context.Context, code string) (*LabTest, error) {
	return s.tests.GetByCode(ctx, code)
}

func (s *Service) ListTests(ctx context.Context, limit, offset int) ([]*LabTest, int, error) {
	return s.tests.List(ctx, limit, offset)
}

// RequiredLevels returns the QC levels the test demands each day before
// patient dispatch. Satisfies the qc engine's level source.
func (s *Service) RequiredLevels(ctx context.Context, testCode string) ([]string, error) {
	t, err := s.tests.GetByCode(ctx, testCode)
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", testCode, err)
	}
	return t.QCLevels, nil
}

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	if d.Code == "" || d.Name == "" {
		return fmt.Errorf("code and name are required")
	}
	return s.departments.Create(ctx, d)
}

func (s *Service) ListDepartments(ctx context.Context) ([]*Department, error) {
	return s.departments.List(ctx)
}
