package testutil

// TinyScenario trains in well under a second: two fixed tasks, a small
// network and a few hundred timesteps.
const TinyScenario = `
worker {
  time_budget = 20
}

task "easy" {
  kind      = "fixed"
  payout    = 0.8
  expertise = 0.9
}

task "hard" {
  kind      = "fixed"
  payout    = 0.2
  expertise = 0.4
}

training {
  total_timesteps = 300
  learning_starts = 50
  buffer_size     = 500
  batch_size      = 8
  hidden_dims     = [16]
  log_interval    = 100
  seed            = 7
}
`
