// Package experiment defines the shared data model for multi-party behavioral
// experiments: experiments, cohorts, participants, stage configurations, chat
// messages and prompt trees. Types here are plain data; behavior lives in the
// stage, prompt, chat and agent packages. Stage and prompt configurations are
// authored once per experiment and treated as read-only during a run, while
// chat messages and trigger logs are append-only run artifacts.
package experiment
