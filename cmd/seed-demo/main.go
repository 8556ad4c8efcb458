package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Seeds a demo subject with a generated question bank plus a batch of
// student accounts, for local runs and load tests.
func main() {
	students := flag.Int("students", 50, "Number of student accounts to create")
	questions := flag.Int("questions", 40, "Number of questions in the demo subject")
	duration := flag.Int("duration", 90, "Exam duration in minutes")
	password := flag.String("password", "stemsijaya", "Password for every seeded student")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	studentService := service.NewStudentService(repository.NewStudentRepository(pool), service.NewAuthService(cfg, nil))

	// ─── Subject ───────────────────────────────────────────────────────
	subject := &model.Subject{
		Code:            "DEMO-MTK",
		Name:            "Matematika (Demo)",
		DurationMinutes: *duration,
		IsActive:        true,
	}
	if err := subjectRepo.Upsert(ctx, subject); err != nil {
		log.Fatal().Err(err).Msg("Failed to upsert subject")
	}
	fmt.Printf("Subject %s ready with ID: %d\n", subject.Code, subject.ID)

	// ─── Question bank ─────────────────────────────────────────────────
	existing, err := questionRepo.CountActive(ctx, subject.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count questions")
	}
	if missing := *questions - existing; missing > 0 {
		bank := make([]model.Question, 0, missing)
		for i := existing; i < *questions; i++ {
			bank = append(bank, demoQuestion(subject.ID, i))
		}
		n, err := questionRepo.BulkInsert(ctx, bank)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to insert questions")
		}
		fmt.Printf("Inserted %d questions\n", n)
	} else {
		fmt.Printf("Subject already has %d questions\n", existing)
	}

	// ─── Students ──────────────────────────────────────────────────────
	successCount := 0
	for i := 0; i < *students; i++ {
		nisn := fmt.Sprintf("user%d", i+1)
		name := fmt.Sprintf("Siswa %02d", i+1)

		if _, err := studentService.Register(ctx, nisn, name, *password, true); err != nil {
			fmt.Printf("Error creating student %s: %v\n", nisn, err)
			continue
		}
		successCount++
		if (i+1)%10 == 0 {
			fmt.Printf("Created %d students...\n", i+1)
		}
	}

	fmt.Printf("\nSeed completed! %d/%d students ready.\n", successCount, *students)
}

// demoQuestion builds "a + b = ?" with the right sum under a rotating option.
func demoQuestion(subjectID, i int) model.Question {
	a, b := i+3, 2*i+1
	sum := a + b
	options := [4]int{sum - 2, sum - 1, sum + 1, sum + 2}
	correct := i % 4
	options[correct] = sum

	difficulty := model.DifficultyEasy
	switch {
	case i%3 == 1:
		difficulty = model.DifficultyMedium
	case i%3 == 2:
		difficulty = model.DifficultyHard
	}

	return model.Question{
		SubjectID:     subjectID,
		QuestionText:  fmt.Sprintf("Berapakah hasil dari %d + %d?", a, b),
		OptionA:       fmt.Sprint(options[0]),
		OptionB:       fmt.Sprint(options[1]),
		OptionC:       fmt.Sprint(options[2]),
		OptionD:       fmt.Sprint(options[3]),
		CorrectOption: string("ABCD"[correct]),
		Difficulty:    difficulty,
	}
}
