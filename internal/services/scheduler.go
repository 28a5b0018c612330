package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TrainingScheduler retrains all content types on a cron schedule. Training
// runs in the background; serving keeps reading the previously published
// artifacts until the swap.
type TrainingScheduler struct {
	trainer *ModelTrainer
	cron    *cron.Cron
	logger  *logrus.Logger
}

func NewTrainingScheduler(trainer *ModelTrainer, schedule string, logger *logrus.Logger) (*TrainingScheduler, error) {
	s := &TrainingScheduler{
		trainer: trainer,
		cron:    cron.New(),
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TrainingScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Training scheduler started")
}

func (s *TrainingScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Training scheduler stopped")
}

func (s *TrainingScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	results := s.trainer.TrainAll(ctx)
	s.logger.WithField("results", results).Info("Scheduled training completed")
}
