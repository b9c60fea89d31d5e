package repository

import (
	"context"
	"strings"

	"github.com/classgate/access-server/internal/model"
)

type CourseRepository interface {
	FindBySubject(ctx context.Context, subject string) (*model.Course, error)
	List(ctx context.Context) ([]model.Course, error)
	Create(ctx context.Context, course model.Course) (*model.Course, error)
}

type courseRepo struct {
	store RecordStore
}

func NewCourseRepository(store RecordStore) CourseRepository {
	return &courseRepo{store: store}
}

func (r *courseRepo) FindBySubject(ctx context.Context, subject string) (*model.Course, error) {
	subject = strings.TrimSpace(subject)
	courses, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if courses[i].Subject == subject {
			return &courses[i], nil
		}
	}
	return nil, nil
}

func (r *courseRepo) List(ctx context.Context) ([]model.Course, error) {
	rows, err := r.store.ReadAll(ctx, TableCourses)
	if err != nil {
		return nil, err
	}
	var courses []model.Course
	for _, row := range rows {
		if !checkColumns(TableCourses, row) {
			continue
		}
		courses = append(courses, model.Course{
			Subject:    strings.TrimSpace(row[0]),
			Instructor: strings.TrimSpace(row[1]),
			CreatedAt:  parseTime(row[2]),
		})
	}
	return courses, nil
}

func (r *courseRepo) Create(ctx context.Context, course model.Course) (*model.Course, error) {
	course.Subject = strings.TrimSpace(course.Subject)
	course.Instructor = strings.TrimSpace(course.Instructor)
	course.CreatedAt = nowIfZero(course.CreatedAt)

	row := Row{course.Subject, course.Instructor, formatTime(course.CreatedAt)}
	if err := r.store.Append(ctx, TableCourses, row); err != nil {
		return nil, err
	}
	return &course, nil
}
