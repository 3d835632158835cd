package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG (owned by collaborators, read-only here)
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create lessons and quizzes
-- Version: 001
-- Both tables belong to the catalog service. This core only reads them.

CREATE TABLE IF NOT EXISTS lessons (
    id VARCHAR(64) PRIMARY KEY,
    course_id VARCHAR(64) NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_lessons_course_id ON lessons(course_id);

CREATE TABLE IF NOT EXISTS quizzes (
    id VARCHAR(64) PRIMARY KEY,
    course_id VARCHAR(64) NOT NULL,
    -- ordered array of {"key": "...", "correct_answer": ...}
    questions JSONB NOT NULL DEFAULT '[]'::jsonb,
    passing_score INTEGER NOT NULL DEFAULT 70,
    attempts INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_passing_score CHECK (passing_score BETWEEN 0 AND 100),
    CONSTRAINT valid_attempts CHECK (attempts >= 1)
);

CREATE INDEX IF NOT EXISTS idx_quizzes_course_id ON quizzes(course_id);
`

const migration001Down = `
DROP TABLE IF EXISTS quizzes;
DROP TABLE IF EXISTS lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROGRESS LEDGER + ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create progress and enrollments
-- Version: 002

CREATE TABLE IF NOT EXISTS progress (
    learner_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    time_spent_seconds INTEGER NOT NULL DEFAULT 0,
    last_position_seconds INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, lesson_id),
    CONSTRAINT valid_time_spent CHECK (time_spent_seconds >= 0),
    CONSTRAINT valid_position CHECK (last_position_seconds >= 0)
);

-- Aggregator recount and overview queries
CREATE INDEX IF NOT EXISTS idx_progress_learner_course ON progress(learner_id, course_id) WHERE completed;
-- Streak window
CREATE INDEX IF NOT EXISTS idx_progress_learner_updated ON progress(learner_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS enrollments (
    learner_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    progress_percent INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    last_accessed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, course_id),
    CONSTRAINT valid_progress_percent CHECK (progress_percent BETWEEN 0 AND 100),
    CONSTRAINT completed_matches_percent CHECK (completed = (progress_percent = 100))
);
`

const migration002Down = `
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: QUIZ SUBMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create quiz_submissions
-- Version: 003
-- Append-only. The unique key rejects the loser of a concurrent attempt race.

CREATE TABLE IF NOT EXISTS quiz_submissions (
    id UUID PRIMARY KEY,
    learner_id VARCHAR(64) NOT NULL,
    quiz_id VARCHAR(64) NOT NULL,
    answers JSONB NOT NULL,
    score INTEGER NOT NULL,
    passed BOOLEAN NOT NULL,
    attempt_number INTEGER NOT NULL,
    time_spent_seconds INTEGER NOT NULL DEFAULT 0,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_quiz_submissions_attempt UNIQUE (learner_id, quiz_id, attempt_number),
    CONSTRAINT valid_score CHECK (score BETWEEN 0 AND 100),
    CONSTRAINT valid_attempt_number CHECK (attempt_number >= 1)
);
`

const migration003Down = `
DROP TABLE IF EXISTS quiz_submissions;
`
